package web

import (
	"context"
	stderrors "errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-clinic-auth"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// Message keys for the pages served by the controller.
const (
	KeyConfirmSuccess     = "web.confirm.success"
	KeyConfirmFailure     = "web.confirm.failure"
	KeyConfirmUnsupported = "web.confirm.unsupported"
	KeyResetSuccess       = "web.reset.success"
	KeyResetMismatch      = "web.reset.mismatch"
	KeyFormError          = "web.error.form"
)

// Link types carried by confirmation and recovery emails.
const (
	LinkTypeSignup   = "signup"
	LinkTypeRecovery = "recovery"
)

// EmailConfirmer redeems the token sent by the sign up email.
type EmailConfirmer interface {
	ConfirmEmail(ctx context.Context, token string) (*auth.ProviderSession, error)
}

// PasswordResetter redeems the token sent by the recovery email.
type PasswordResetter interface {
	CompletePasswordReset(ctx context.Context, token, newPassword string) (*auth.ProviderSession, error)
}

// Routes are the paths the controller registers.
type Routes struct {
	Home          string
	State         string
	SignIn        string
	SignUp        string
	SignOut       string
	Reset         string
	Callback      string
	ResetPassword string
	Cases         string
}

// Views are the template names the controller renders.
type Views struct {
	Home          string
	ResetPassword string
	Error         string
}

// Controller serves the clinic page and forwards its forms to the gate.
type Controller struct {
	Debug        bool
	Logger       auth.Logger
	Gate         *auth.SessionGate
	Notices      *NoticeBoard
	Confirmer    EmailConfirmer
	Resetter     PasswordResetter
	Routes       *Routes
	Views        *Views
	ErrorHandler router.ErrorHandler
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller) *Controller

// WithLogger sets the controller logger.
func WithLogger(logger auth.Logger) ControllerOption {
	return func(c *Controller) *Controller {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithNotices sets the board read when rendering notices. It must be the
// notifier the gate was built with.
func WithNotices(board *NoticeBoard) ControllerOption {
	return func(c *Controller) *Controller {
		if board != nil {
			c.Notices = board
		}
		return c
	}
}

// WithConfirmer enables the sign up confirmation link handler.
func WithConfirmer(confirmer EmailConfirmer) ControllerOption {
	return func(c *Controller) *Controller {
		c.Confirmer = confirmer
		return c
	}
}

// WithResetter enables the recovery link handler.
func WithResetter(resetter PasswordResetter) ControllerOption {
	return func(c *Controller) *Controller {
		c.Resetter = resetter
		return c
	}
}

// WithDebug dumps form outcomes to the logger.
func WithDebug(debug bool) ControllerOption {
	return func(c *Controller) *Controller {
		c.Debug = debug
		return c
	}
}

// WithErrorHandler overrides how handler failures are rendered.
func WithErrorHandler(handler router.ErrorHandler) ControllerOption {
	return func(c *Controller) *Controller {
		if handler != nil {
			c.ErrorHandler = handler
		}
		return c
	}
}

// NewController builds a controller for gate. It panics without a gate.
func NewController(gate *auth.SessionGate, opts ...ControllerOption) *Controller {
	if gate == nil {
		panic("web: controller requires a session gate")
	}

	c := &Controller{
		Gate: gate,
		Routes: &Routes{
			Home:          "/",
			State:         "/api/state",
			SignIn:        "/auth/signin",
			SignUp:        "/auth/signup",
			SignOut:       "/auth/signout",
			Reset:         "/auth/reset",
			Callback:      auth.CallbackPath,
			ResetPassword: auth.ResetPasswordPath,
			Cases:         "/cases",
		},
		Views: &Views{
			Home:          "index",
			ResetPassword: "reset_password",
			Error:         "500",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	_, c.Logger = auth.ResolveLogger("auth.web", nil, c.Logger)

	if c.Notices == nil {
		c.Notices = NewNoticeBoard(nil)
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = c.renderError
	}

	return c
}

// RegisterRoutes mounts the controller on app.
func RegisterRoutes[T any](app router.Router[T], c *Controller) {
	app.Get(c.Routes.Home, c.Home).SetName("home.get")
	app.Get(c.Routes.State, c.State).SetName("state.get")

	app.Post(c.Routes.SignIn, c.SignIn).SetName("sign-in.post")
	app.Post(c.Routes.SignUp, c.SignUp).SetName("sign-up.post")
	app.Post(c.Routes.SignOut, c.SignOut).SetName("sign-out.post")
	app.Post(c.Routes.Reset, c.ResetRequest).SetName("pwd-reset.post")

	app.Get(c.Routes.Callback, c.Callback).SetName("auth-callback.get")
	app.Get(c.Routes.ResetPassword, c.ResetPasswordForm).SetName("pwd-reset-do.get")
	app.Post(c.Routes.ResetPassword, c.ResetPasswordExecute).SetName("pwd-reset-do.post")

	app.Post(c.Routes.Cases, c.SaveCase).SetName("cases.post")
}

// Home renders the page for the current gate state. Authenticated visitors
// get a fresh copy of the gallery on every render.
func (c *Controller) Home(ctx router.Context) error {
	if c.Gate.State().IsAuthenticated() {
		if _, err := c.Gate.LoadGatedContent(ctx.Context()); err != nil {
			c.Logger.Warn("gallery not loaded", "error", err)
		}
	}

	return ctx.Render(c.Views.Home, c.viewContext(router.ViewContext{
		"routes": c.Routes,
	}))
}

// State returns the view model as JSON.
func (c *Controller) State(ctx router.Context) error {
	return ctx.JSON(router.StatusOK, c.Gate.View(c.Notices.Current()))
}

// SignIn handles the sign in form.
func (c *Controller) SignIn(ctx router.Context) error {
	payload := new(CredentialsPayload)
	if err := ctx.Bind(payload); err != nil {
		return c.badForm(ctx, "sign in", err)
	}

	res := c.Gate.SignIn(ctx.Context(), payload.Email, payload.Password)
	return c.finish(ctx, "sign in", res)
}

// SaveCase handles the admin form that adds a treatment case. Whether the
// visitor may insert is left to the provider.
func (c *Controller) SaveCase(ctx router.Context) error {
	payload := new(auth.TreatmentCaseInput)
	if err := ctx.Bind(payload); err != nil {
		return c.badForm(ctx, "save case", err)
	}

	res := c.Gate.SaveTreatmentCase(ctx.Context(), *payload)
	return c.finish(ctx, "save case", res)
}

// SignUp handles the registration form.
func (c *Controller) SignUp(ctx router.Context) error {
	payload := new(CredentialsPayload)
	if err := ctx.Bind(payload); err != nil {
		return c.badForm(ctx, "sign up", err)
	}

	res := c.Gate.SignUpWithPhone(ctx.Context(), payload.Email, payload.Password, payload.Phone)
	return c.finish(ctx, "sign up", res)
}

// SignOut ends the session.
func (c *Controller) SignOut(ctx router.Context) error {
	res := c.Gate.SignOut(ctx.Context())
	return c.finish(ctx, "sign out", res)
}

// ResetRequest asks the provider to email a recovery link.
func (c *Controller) ResetRequest(ctx router.Context) error {
	payload := new(ResetRequestPayload)
	if err := ctx.Bind(payload); err != nil {
		return c.badForm(ctx, "password reset", err)
	}

	res := c.Gate.RequestPasswordReset(ctx.Context(), payload.Email)
	return c.finish(ctx, "password reset", res)
}

// Callback lands the links sent by email. Sign up links are redeemed right
// away, recovery links show the new password form.
func (c *Controller) Callback(ctx router.Context) error {
	token := ctx.Query("token")
	linkType := ctx.Query("type")
	msgs := c.Gate.Messages()

	if linkType == LinkTypeRecovery {
		return c.renderResetForm(ctx, token, nil)
	}

	if c.Confirmer == nil || token == "" {
		c.Notices.Post(auth.NoticeError, msgs.Text(KeyConfirmUnsupported))
		return ctx.Redirect(c.Routes.Home, router.StatusSeeOther)
	}

	if _, err := c.Confirmer.ConfirmEmail(ctx.Context(), token); err != nil {
		c.Logger.Warn("email confirmation failed", "error", err)
		c.Notices.Post(auth.NoticeError, msgs.Text(KeyConfirmFailure))
		return ctx.Redirect(c.Routes.Home, router.StatusSeeOther)
	}

	c.Notices.Post(auth.NoticeSuccess, msgs.Text(KeyConfirmSuccess))
	return ctx.Redirect(c.Routes.Home, router.StatusSeeOther)
}

// ResetPasswordForm renders the new password form for a recovery token.
func (c *Controller) ResetPasswordForm(ctx router.Context) error {
	return c.renderResetForm(ctx, ctx.Query("token"), nil)
}

// ResetPasswordExecute redeems the recovery token with the new password.
func (c *Controller) ResetPasswordExecute(ctx router.Context) error {
	payload := new(NewPasswordPayload)
	if err := ctx.Bind(payload); err != nil {
		return c.badForm(ctx, "new password", err)
	}

	msgs := c.Gate.Messages()

	if err := payload.Validate(); err != nil {
		errs := map[string]string{"form": msgs.Text(auth.KeyPasswordMin)}
		var verrs validation.Errors
		if stderrors.As(err, &verrs) {
			if verrs["password"] == nil && verrs["confirm_password"] != nil {
				errs["form"] = msgs.Text(KeyResetMismatch)
			}
			for field, ferr := range verrs {
				errs[field] = ferr.Error()
			}
		}
		return c.renderResetForm(ctx, payload.Token, errs)
	}

	if c.Resetter == nil {
		c.Notices.Post(auth.NoticeError, msgs.Text(KeyConfirmUnsupported))
		return ctx.Redirect(c.Routes.Home, router.StatusSeeOther)
	}

	if _, err := c.Resetter.CompletePasswordReset(ctx.Context(), payload.Token, payload.Password); err != nil {
		c.Logger.Warn("password reset failed", "error", err)
		return c.renderResetForm(ctx, payload.Token, map[string]string{
			"form": msgs.ErrorMessage(err),
		})
	}

	c.Notices.Post(auth.NoticeSuccess, msgs.Text(KeyResetSuccess))
	return ctx.Redirect(c.Routes.Home, router.StatusSeeOther)
}

func (c *Controller) renderResetForm(ctx router.Context, token string, errs map[string]string) error {
	return ctx.Render(c.Views.ResetPassword, c.viewContext(router.ViewContext{
		"routes": c.Routes,
		"token":  token,
		"errors": errs,
	}))
}

func (c *Controller) finish(ctx router.Context, op string, res auth.Result) error {
	if c.Debug {
		c.Logger.Debug("form result", "operation", op, "result", print.MaybePrettyJSON(map[string]any{
			"success": res.Success,
			"kind":    res.Kind,
			"message": res.Message,
			"state":   c.Gate.State(),
		}))
	}

	if !res.Success {
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  res.Message,
			"system_message": op + " failed",
		}).Redirect(c.Routes.Home, router.StatusSeeOther)
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": res.Message,
	}).Redirect(c.Routes.Home, router.StatusSeeOther)
}

func (c *Controller) badForm(ctx router.Context, op string, err error) error {
	c.Logger.Error("parse form payload", "operation", op, "error", err)
	c.Notices.Post(auth.NoticeError, c.Gate.Messages().Text(KeyFormError))
	return c.ErrorHandler(ctx, err)
}

// viewContext merges the template helpers, the view model and extra.
func (c *Controller) viewContext(extra router.ViewContext) router.ViewContext {
	vm := c.Gate.View(c.Notices.Current())
	out := router.ViewContext{}
	for k, v := range auth.TemplateHelpersWithView(vm) {
		out[k] = v
	}
	msgs := c.Gate.Messages()
	out["messages"] = msgs
	out["t"] = func(key string) string { return msgs.Text(key) }
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func (c *Controller) renderError(ctx router.Context, _ error) error {
	return ctx.Render(c.Views.Error, c.viewContext(router.ViewContext{
		"routes":  c.Routes,
		"message": c.Gate.Messages().Text(KeyFormError),
	}))
}
