package decoder

import (
	"context"
	"unicode/utf8"

	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
	"github.com/faanross/simulacra_lsb/internal/raster"
	"github.com/faanross/simulacra_lsb/internal/stego"
)

// Match is the first candidate password that produced a readable message.
type Match struct {
	Index    int
	Password string
	Message  []byte
}

// TryPasswords extracts the payload of r once and deobfuscates it with each
// candidate in order. A candidate matches when deobfuscation succeeds and
// the result is valid UTF-8. With the keystream a wrong password can still
// produce valid UTF-8, so a match is a strong hint, not a proof.
func (d *Decoder) TryPasswords(ctx context.Context, r *raster.Raster, candidates []string) (*Match, error) {
	payload, err := stego.Extract(ctx, r, d.Workers)
	if err != nil {
		return nil, err
	}

	ob := d.Obfuscator
	if ob == nil {
		ob = stego.Keystream{}
	}

	for i, pw := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		msg, err := ob.Deobfuscate(payload, []byte(pw))
		if err != nil {
			d.Log.Debugf("attempt %d/%d: %v", i+1, len(candidates), err)
			continue
		}
		if !utf8.Valid(msg) {
			d.Log.Debugf("attempt %d/%d: not valid UTF-8", i+1, len(candidates))
			continue
		}

		d.Log.Infof("attempt %d/%d succeeded", i+1, len(candidates))
		return &Match{Index: i, Password: pw, Message: msg}, nil
	}

	return nil, kerrors.ErrNoPasswordMatch
}
