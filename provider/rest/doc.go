// Package rest implements auth.Provider against a hosted auth and data
// backend over HTTP.
//
// Account operations go to the token service under /auth/v1 (signup,
// token, logout, recover, user). Table reads and writes go to the table
// service under /rest/v1 using column=op.value filters. Every request
// carries the project anon key; requests made with a session also carry
// its access token.
//
// Sessions are refreshed on CurrentSession when they are about to expire
// and can be persisted with a SessionStore so a restarted process picks
// its session back up:
//
//	provider, err := rest.New(rest.Config{
//		URL:     "https://abc.example.co",
//		AnonKey: os.Getenv("CLINIC_ANON_KEY"),
//		Store:   rest.NewFileStore(filepath.Join(home, ".clinicgate", "session.json")),
//	})
package rest
