package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
	"github.com/faanross/simulacra_lsb/internal/history"
	"github.com/faanross/simulacra_lsb/internal/scrypto"
	"github.com/faanross/simulacra_lsb/internal/stego"
	"github.com/faanross/simulacra_lsb/internal/ui"
	"github.com/faanross/simulacra_lsb/internal/users"
)

// startSpinner shows a spinner on w unless verbose output is on. The returned
// func stops it and prints FinalMSG.
func (a *app) startSpinner(w io.Writer, message string) (*spinner.Spinner, func()) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " " + message
	_ = s.Color("cyan")

	if !a.verbose && !a.debug {
		s.Start()
	} else {
		a.log.Infof("%s", message)
	}

	return s, func() {
		if s.Active() {
			s.Stop()
			return
		}
		if s.FinalMSG != "" {
			fmt.Fprint(w, s.FinalMSG)
		}
	}
}

// passwordFlags are shared by every command that takes a password.
type passwordFlags struct {
	password string
	prompt   bool
	cipher   string
}

func (p *passwordFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&p.password, "password", "p", "", "password for the hidden payload")
	cmd.Flags().BoolVar(&p.prompt, "prompt", false, "read the password from the terminal without echo")
	cmd.Flags().StringVar(&p.cipher, "cipher", "", "payload cipher: xor or sealed (default from config)")
}

// read resolves the password. confirm asks twice when prompting.
func (p *passwordFlags) read(confirm bool) ([]byte, error) {
	if !p.prompt {
		return []byte(p.password), nil
	}

	pass, err := scrypto.GetSecurePassword("Enter password: ", 1)
	if err != nil {
		return nil, err
	}
	if confirm {
		again, err := scrypto.GetSecurePassword("Confirm password: ", 1)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(pass, again) {
			return nil, errors.New("passwords do not match")
		}
	}
	return pass, nil
}

func (p *passwordFlags) obfuscator(a *app) (stego.Obfuscator, error) {
	name := p.cipher
	if name == "" {
		name = a.cfg.Codec.Cipher
	}
	return scrypto.ForCipher(name)
}

// currentUser is the logged in username, or "" when nobody is.
func (a *app) currentUser() string {
	sess, err := users.NewSessionStore(a.cfg.Users.SessionPath).Current()
	if err != nil {
		return ""
	}
	return sess.Username
}

func (a *app) historyStore() (history.Store, error) {
	return history.OpenFileStore(a.cfg.History.Path)
}

// record adds a history entry. Failures are logged, never returned.
func (a *app) record(kind history.Kind, filename string, messageLength int, cid string) {
	if !a.cfg.History.Enabled {
		return
	}
	store, err := a.historyStore()
	if err != nil {
		a.log.Warnf("history unavailable: %v", err)
		return
	}
	_, err = store.Add(history.Entry{
		Kind:          kind,
		Filename:      filename,
		MessageLength: messageLength,
		ImageCID:      cid,
		User:          a.currentUser(),
	})
	if err != nil {
		a.log.Warnf("failed to record history: %v", err)
	}
}

// readMessage returns the message from --message, or from --message-file
// where "-" means stdin.
func readMessage(cmd *cobra.Command, text, file string) ([]byte, error) {
	switch {
	case text != "" && file != "":
		return nil, errors.New("use either --message or --message-file, not both")
	case file == "-":
		return io.ReadAll(cmd.InOrStdin())
	case file != "":
		return os.ReadFile(file)
	case text != "":
		return []byte(text), nil
	default:
		return nil, errors.New("no message given: use --message or --message-file")
	}
}

// explain turns known errors into a next step for the user.
func explain(err error) string {
	switch {
	case errors.Is(err, kerrors.ErrIncompleteStream):
		return "no hidden message found (wrong image or password)"
	case errors.Is(err, kerrors.ErrAuthFailed):
		return "wrong password, or the image was modified after encoding"
	case errors.Is(err, kerrors.ErrCapacityExceeded):
		return "use a larger image or a shorter message; " + ui.Code.Sprint("simulacra capacity --in IMAGE") + " shows the limit"
	case errors.Is(err, kerrors.ErrLossyFormat):
		return "lossy formats destroy hidden bits; save as " + ui.Path.Sprint(".png") + " or " + ui.Path.Sprint(".tiff")
	case errors.Is(err, kerrors.ErrUnsupportedFormat):
		return "use a " + ui.Path.Sprint(".png") + ", " + ui.Path.Sprint(".bmp") + " or " + ui.Path.Sprint(".tiff") + " file name"
	case errors.Is(err, kerrors.ErrImageTooLarge):
		return "raise " + ui.Highlight.Sprint("max_image_bytes") + " in the config to allow larger images"
	case errors.Is(err, kerrors.ErrImageLoad):
		return "the file could not be read as an image"
	case errors.Is(err, kerrors.ErrUnknownCipher):
		return "valid ciphers are " + ui.Highlight.Sprint("xor") + " and " + ui.Highlight.Sprint("sealed")
	case errors.Is(err, kerrors.ErrNoPasswordMatch):
		return "none of the candidates decoded to readable text"
	case errors.Is(err, kerrors.ErrNotLoggedIn):
		return "run " + ui.Code.Sprint("simulacra user login") + " first"
	case errors.Is(err, kerrors.ErrInvalidCredentials):
		return "check the email and password; the demo account is " + ui.Highlight.Sprint(users.DemoEmail)
	case errors.Is(err, kerrors.ErrMessageNotFound):
		return "the relay does not hold that message; it may have expired"
	case errors.Is(err, kerrors.ErrChecksumMismatch):
		return "the fetched data is corrupt; try fetching again"
	}
	return ""
}
