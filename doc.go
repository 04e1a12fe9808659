// Package walletauth drives the sign-in flow of the Mobil3 wallet app on top of an
// external wallet/authentication backend (Para).
//
// The app never performs authentication itself. It collects an email, phone number,
// OAuth provider choice or one-time code, hands it to a Gateway and decides which
// screen comes next from the Gateway's answer.
//
// # Stages
//
// A session moves through four stages:
//
//	Input  -> Verify  -> Success   new account: one-time code, then passkey registration
//	Input  -> Login   -> Success   existing account: passkey login runs automatically
//	Input  -> Success              OAuth
//
// Verify and Login can go back to Input. Success is terminal until Reset.
//
// # Usage
//
//	gw := client.NewGateway(client.Config{Env: walletauth.EnvBeta, APIKey: apiKey})
//	if err := gw.Init(ctx); err != nil {
//	    slog.Warn("wallet backend init failed", "err", err)
//	}
//
//	ctrl := walletauth.NewController(gw, walletauth.WithObserver(render))
//	ctrl.SubmitEmail(ctx, "user@example.com")
//	if ctrl.State().Stage == walletauth.StageVerify {
//	    ctrl.SubmitVerificationCode(ctx, code)
//	}
//
// Controller actions block until the Gateway answers. Presentation code should run
// them off its event loop and render State snapshots; State.Loading tells it to
// disable its controls, and any intent sent while loading is ignored.
//
// # Errors
//
// Failures never escape an action. They are recorded in State.Err as one of
// ValidationError, AuthError, UnexpectedResponseError or PartialCompletionError,
// with State.ErrorMessage holding the text to show the user.
package walletauth
