// Copyright 2024-2026 Aiku AI

package gateway

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/rs/zerolog"
	qrcode "github.com/skip2/go-qrcode"
)

// Presenter renders a pairing challenge for the operator to scan. The
// supervisor depends only on this interface; how the code reaches a human
// eyeball (inline terminal art, an external viewer process, nothing) is the
// implementation's business.
type Presenter interface {
	Present(code string)
}

// TerminalPresenter renders the challenge as a scannable QR block on out.
type TerminalPresenter struct {
	Out io.Writer
	Log zerolog.Logger
}

func (p *TerminalPresenter) Present(code string) {
	qr, err := qrcode.New(code, qrcode.Low)
	if err != nil {
		p.Log.Error().Err(err).Msg("Failed to render pairing QR code")
		return
	}
	fmt.Fprintf(p.Out, "\nScan with the phone to pair:\n%s\n", qr.ToSmallString(false))
}

// ExecPresenter hands the challenge to an external helper process, appended
// as the final argument. The helper is fire-and-forget; a failure to start
// it is logged and the challenge stays available via /status.
type ExecPresenter struct {
	Command []string
	Log     zerolog.Logger
}

func (p *ExecPresenter) Present(code string) {
	if len(p.Command) == 0 {
		return
	}
	args := append(append([]string{}, p.Command[1:]...), code)
	cmd := exec.Command(p.Command[0], args...)
	if err := cmd.Start(); err != nil {
		p.Log.Error().Err(err).Str("command", p.Command[0]).Msg("Failed to start QR helper")
		return
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			p.Log.Warn().Err(err).Str("command", p.Command[0]).Msg("QR helper exited with error")
		}
	}()
}

// NopPresenter discards challenges; /status remains the only way to read
// them.
type NopPresenter struct{}

func (NopPresenter) Present(string) {}
