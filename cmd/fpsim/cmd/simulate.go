package cmd

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/fpsim/engine"
	"github.com/jmcleod/fpsim/hat"
)

var (
	simSeed      uint64
	simStepDelay time.Duration
	simMatchRate float64
	simVerbose   bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run an enroll, authenticate and remove scenario against an in-process sensor",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.DiscardHandler)
		if simVerbose {
			logger = newLogger("debug")
		}
		signer := hat.NewRandomSigner()
		defer signer.Destroy()

		e := engine.New(
			engine.WithSeed(simSeed),
			engine.WithStepDelay(simStepDelay),
			engine.WithMatchRate(simMatchRate),
			engine.WithTokenSigner(signer),
			engine.WithLogger(logger),
		)
		defer e.Close()
		return runScenario(cmd.OutOrStdout(), e)
	},
}

// printer is a SessionCallback that writes each event to w and signals
// terminal events on done.
type printer struct {
	mu   sync.Mutex
	w    io.Writer
	done chan engine.Kind
}

var _ engine.SessionCallback = (*printer)(nil)

func newPrinter(w io.Writer) *printer {
	return &printer{w: w, done: make(chan engine.Kind, 1)}
}

func (p *printer) emit(kind engine.Kind, format string, args ...any) {
	p.mu.Lock()
	fmt.Fprintf(p.w, "  %-30s %s\n", kind, fmt.Sprintf(format, args...))
	p.mu.Unlock()
	if kind.Terminal() {
		p.done <- kind
	}
}

func (p *printer) OnChallengeGenerated(c int64) { p.emit(engine.KindChallengeGenerated, "%d", c) }
func (p *printer) OnChallengeRevoked(c int64)   { p.emit(engine.KindChallengeRevoked, "%d", c) }
func (p *printer) OnAcquired(info engine.AcquiredInfo) {
	p.emit(engine.KindAcquired, "%s", info)
}
func (p *printer) OnError(code engine.Error)  { p.emit(engine.KindError, "%s", code) }
func (p *printer) OnEnrollmentProgress(n int) { p.emit(engine.KindEnrollmentProgress, "%d%%", n) }
func (p *printer) OnEnrolled(id int32)        { p.emit(engine.KindEnrolled, "id=%d", id) }
func (p *printer) OnAuthenticationSucceeded(id int32, tok *hat.Token) {
	if tok == nil {
		p.emit(engine.KindAuthenticationSucceeded, "id=%d", id)
		return
	}
	p.emit(engine.KindAuthenticationSucceeded, "id=%d challenge=%d user=%d", id, tok.Challenge, tok.UserID)
}
func (p *printer) OnAuthenticationFailed() { p.emit(engine.KindAuthenticationFailed, "") }
func (p *printer) OnLockoutTimed(d time.Duration) {
	p.emit(engine.KindLockoutTimed, "remaining=%s", d)
}
func (p *printer) OnLockoutPermanent()    { p.emit(engine.KindLockoutPermanent, "") }
func (p *printer) OnLockoutCleared()      { p.emit(engine.KindLockoutCleared, "") }
func (p *printer) OnInteractionDetected() { p.emit(engine.KindInteractionDetected, "") }
func (p *printer) OnEnrollmentsEnumerated(ids []int32) {
	p.emit(engine.KindEnrollmentsEnumerated, "%v", ids)
}
func (p *printer) OnEnrollmentsRemoved(ids []int32) {
	p.emit(engine.KindEnrollmentsRemoved, "%v", ids)
}
func (p *printer) OnAuthenticatorIDRetrieved(id int64) {
	p.emit(engine.KindAuthenticatorIDRetrieved, "%d", id)
}
func (p *printer) OnAuthenticatorIDInvalidated(id int64) {
	p.emit(engine.KindAuthenticatorIDInvalidated, "%d", id)
}

func (p *printer) wait() (engine.Kind, error) {
	select {
	case k := <-p.done:
		return k, nil
	case <-time.After(time.Minute):
		return "", errors.New("timed out waiting for terminal callback")
	}
}

// runScenario drives e through enumerate, enroll, authenticate and remove,
// printing every callback.
func runScenario(w io.Writer, e *engine.Engine) error {
	p := newPrinter(w)
	step := func(title string, start func()) (engine.Kind, error) {
		fmt.Fprintf(w, "%s\n", title)
		start()
		return p.wait()
	}

	if _, err := step("enumerate enrollments", func() { e.EnumerateEnrollments(p) }); err != nil {
		return err
	}
	kind, err := step("enroll", func() { e.Enroll(p, &hat.Token{}, engine.NewCancellationSignal()) })
	if err != nil {
		return err
	}
	if kind != engine.KindEnrolled {
		return fmt.Errorf("enroll ended with %s", kind)
	}
	ids := e.Enrollments()

	if _, err := step("enumerate enrollments", func() { e.EnumerateEnrollments(p) }); err != nil {
		return err
	}
	if _, err := step("authenticate", func() { e.Authenticate(p, 1, engine.NewCancellationSignal()) }); err != nil {
		return err
	}
	if _, err := step("authenticator id", func() { e.GetAuthenticatorID(p) }); err != nil {
		return err
	}
	if _, err := step("remove enrollments", func() { e.RemoveEnrollments(p, ids) }); err != nil {
		return err
	}
	if _, err := step("authenticator id", func() { e.GetAuthenticatorID(p) }); err != nil {
		return err
	}
	return nil
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().Uint64Var(&simSeed, "seed", engine.DefaultSeed, "Seed for the simulated sensor")
	simulateCmd.Flags().DurationVar(&simStepDelay, "step-delay", 100*time.Millisecond, "Delay between capture steps")
	simulateCmd.Flags().Float64Var(&simMatchRate, "match-rate", 0.8, "Probability that an authentication matches")
	simulateCmd.Flags().BoolVarP(&simVerbose, "verbose", "v", false, "Log engine activity to stderr")
}
