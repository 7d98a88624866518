package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wolfeidau/eddits-console/internal/models"
	"github.com/wolfeidau/eddits-console/internal/session"
)

// LoginCmd signs in and stores the session.
type LoginCmd struct {
	Username      string `arg:"" help:"Username to sign in as"`
	Password      string `help:"Password" env:"EDDITS_PASSWORD"`
	PasswordStdin bool   `help:"Read the password from stdin" name:"password-stdin"`
	RememberMe    bool   `help:"Keep the access token for 30 days instead of 1" name:"remember-me"`
}

func (c *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	password := c.Password
	if c.PasswordStdin {
		line, err := bufio.NewReader(globals.stdin()).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}
	if password == "" {
		return errors.New("password is required (--password, --password-stdin or EDDITS_PASSWORD)")
	}

	a, cleanup, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	user, err := a.Session.Login(ctx, session.Credentials{
		Username:   c.Username,
		Password:   password,
		RememberMe: c.RememberMe,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(globals.stdout(), "Signed in as %s\n", user.DisplayName())
	return nil
}

// LogoutCmd ends the session.
type LogoutCmd struct{}

func (c *LogoutCmd) Run(ctx context.Context, globals *Globals) error {
	a, cleanup, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	result := a.Session.Logout(ctx)
	if result.RemoteAttempted && result.RemoteErr != nil {
		log.Debug().Err(result.RemoteErr).Msg("backend was not told about the logout")
	}

	return result.StorageErr
}

// StatusCmd validates the stored session, refreshing it if needed.
type StatusCmd struct{}

func (c *StatusCmd) Run(ctx context.Context, globals *Globals) error {
	a, cleanup, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if !a.Session.CheckAuth(ctx) {
		return ErrNotLoggedIn
	}

	tok, err := a.Session.Token()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(globals.stdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Status:\tauthenticated\n")
	if u := a.Session.State().User; u != nil {
		fmt.Fprintf(w, "User:\t%s\n", u.DisplayName())
	}
	fmt.Fprintf(w, "API:\t%s\n", a.Gateway.BaseURL())
	fmt.Fprintf(w, "Access token expires:\t%s\n", describeExpiry(tok.Expiry))
	return w.Flush()
}

// RefreshCmd swaps the refresh token for a new access token.
type RefreshCmd struct{}

func (c *RefreshCmd) Run(ctx context.Context, globals *Globals) error {
	a, cleanup, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := requireSession(a); err != nil {
		return err
	}
	if a.Session.State().RefreshToken == "" {
		return session.ErrNoRefreshToken
	}

	if !a.Session.RefreshAccessToken(ctx) {
		return errors.New("token refresh failed, log in again")
	}

	tok, err := a.Session.Token()
	if err != nil {
		return err
	}

	fmt.Fprintf(globals.stdout(), "Access token refreshed, expires %s\n", describeExpiry(tok.Expiry))
	return nil
}

// WhoamiCmd shows the signed in user.
type WhoamiCmd struct {
	JSON bool `help:"Print the profile as JSON" name:"json"`
}

func (c *WhoamiCmd) Run(ctx context.Context, globals *Globals) error {
	a, cleanup, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if !a.Session.CheckAuth(ctx) {
		return ErrNotLoggedIn
	}

	s := a.Session.State()
	if s.User == nil {
		return session.ErrNoUser
	}

	if c.JSON {
		return writeJSON(globals.stdout(), s.User)
	}

	var expiry time.Time
	if tok, err := a.Session.Token(); err == nil {
		expiry = tok.Expiry
	}

	return printUser(globals, s.User, expiry)
}

func printUser(globals *Globals, u *models.User, tokenExpiry time.Time) error {
	role := "user"
	switch {
	case u.IsSuperuser:
		role = "superuser"
	case u.IsStaff:
		role = "staff"
	}

	w := tabwriter.NewWriter(globals.stdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID:\t%d\n", u.ID)
	fmt.Fprintf(w, "Username:\t%s\n", u.Username)
	fmt.Fprintf(w, "Name:\t%s\n", u.DisplayName())
	fmt.Fprintf(w, "Email:\t%s\n", u.Email)
	if u.PhoneNumber != "" {
		fmt.Fprintf(w, "Phone:\t%s\n", u.PhoneNumber)
	}
	fmt.Fprintf(w, "Role:\t%s\n", role)
	if len(u.Permissions) > 0 {
		fmt.Fprintf(w, "Permissions:\t%s\n", strings.Join(u.Permissions, ", "))
	}
	if !tokenExpiry.IsZero() {
		fmt.Fprintf(w, "Token expires:\t%s\n", describeExpiry(tokenExpiry))
	}
	return w.Flush()
}

// PasswdCmd changes the account password.
type PasswdCmd struct {
	Current string `help:"Current password" env:"EDDITS_PASSWORD" required:""`
	New     string `help:"New password" env:"EDDITS_NEW_PASSWORD" required:"" name:"new"`
	Confirm string `help:"New password again" required:""`
}

func (c *PasswdCmd) Run(ctx context.Context, globals *Globals) error {
	a, cleanup, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := requireSession(a); err != nil {
		return err
	}

	return a.Session.ChangePassword(ctx, session.PasswordChange{
		CurrentPassword: c.Current,
		NewPassword:     c.New,
		ConfirmPassword: c.Confirm,
	})
}

// ProfileCmd updates profile fields. Only flags that are given change.
type ProfileCmd struct {
	Email          string `help:"Email address"`
	FirstName      string `help:"First name" name:"first-name"`
	LastName       string `help:"Last name" name:"last-name"`
	Phone          string `help:"Phone number"`
	ProfilePicture string `help:"Profile picture URL" name:"picture"`
}

func (c *ProfileCmd) patch() models.UserPatch {
	set := func(v string) *string {
		if v == "" {
			return nil
		}
		return &v
	}

	return models.UserPatch{
		Email:          set(c.Email),
		FirstName:      set(c.FirstName),
		LastName:       set(c.LastName),
		PhoneNumber:    set(c.Phone),
		ProfilePicture: set(c.ProfilePicture),
	}
}

func (c *ProfileCmd) Run(ctx context.Context, globals *Globals) error {
	patch := c.patch()
	if patch.IsEmpty() {
		fmt.Fprintln(globals.stderr(), "Nothing to update.")
		return nil
	}

	a, cleanup, err := globals.open(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if !a.Session.CheckAuth(ctx) {
		return ErrNotLoggedIn
	}

	user, err := a.Session.UpdateProfile(ctx, patch)
	if err != nil {
		return err
	}

	return printUser(globals, user, time.Time{})
}
