// Package console is the command loop of blecon: it reads command lines,
// dispatches them to the engine, reports errors and folds them into the
// session exit code.
package console

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/chzyer/readline"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"github.com/srg/blecon/internal/device"
	"github.com/srg/blecon/internal/engine"
	"github.com/srg/blecon/internal/gatt"
	"github.com/srg/blecon/internal/groutine"
	"github.com/srg/blecon/internal/session"
)

// Options tunes the console.
type Options struct {
	// SettleDelay is slept after every write so notifications triggered by
	// it are printed before the next command.
	SettleDelay time.Duration `default:"200ms"`
	Version     string        `default:"dev"`

	// Width returns the terminal width for wide listings.
	Width func() int
	// Now returns the time used by print variables.
	Now func() time.Time
}

// Console runs commands from a LineReader against one engine and session.
type Console struct {
	engine  *engine.Engine
	session *session.Session
	devices device.Discoverer
	in      LineReader
	out     *Output
	opts    Options
	logger  *logrus.Logger

	commands []*command
	byName   map[string]*command

	mu        sync.Mutex
	cmdCancel context.CancelFunc
	stop      context.CancelFunc
}

// New creates a console. Zero fields of opts are filled with defaults.
func New(eng *engine.Engine, sess *session.Session, devices device.Discoverer, in LineReader, out *Output, opts *Options, logger *logrus.Logger) *Console {
	if logger == nil {
		logger = logrus.New()
	}
	o := Options{}
	if opts != nil {
		o = *opts
	}
	defaults.SetDefaults(&o)
	if o.Width == nil {
		o.Width = terminalWidth
	}
	if o.Now == nil {
		o.Now = time.Now
	}

	c := &Console{
		engine:  eng,
		session: sess,
		devices: devices,
		in:      in,
		out:     out,
		opts:    o,
		logger:  logger,
	}
	c.commands = c.commandTable()
	c.byName = make(map[string]*command)
	for _, cmd := range c.commands {
		for _, name := range cmd.names {
			c.byName[name] = cmd
		}
	}
	return c
}

type lineResult struct {
	line string
	err  error
}

// Run reads and executes commands until quit, end of input, an interrupt
// at the prompt, or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	c.mu.Lock()
	c.stop = stop
	c.mu.Unlock()
	defer c.in.Close()

	if !c.out.Redirected() {
		c.out.Line("%s", c.banner())
	}

	for {
		line, err := c.readLine(ctx)
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			c.out.Infof("\nblecon is terminated")
			return nil
		case errors.Is(err, io.EOF), ctx.Err() != nil:
			return nil
		case err != nil:
			return err
		}

		if c.out.Redirected() && strings.TrimSpace(line) == "" {
			return nil
		}
		if c.Execute(ctx, line) {
			return nil
		}
	}
}

func (c *Console) readLine(ctx context.Context) (string, error) {
	ch := make(chan lineResult, 1)
	groutine.Go(ctx, "console-reader", func(context.Context) {
		line, err := c.in.Readline()
		ch <- lineResult{line: line, err: err}
	})
	select {
	case r := <-ch:
		return r.line, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Execute runs one command line and reports whether the console should quit.
func (c *Console) Execute(ctx context.Context, line string) (quit bool) {
	line = strings.TrimLeft(line, " \t")
	if line == "" {
		return false
	}
	verb, args, _ := strings.Cut(line, " ")
	verb = strings.ToLower(verb)

	cmd, ok := c.byName[verb]
	if !ok {
		c.out.Error(ErrUnknownCommand)
		return false
	}
	if cmd.quit {
		return true
	}

	cmdCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cmdCancel = cancel
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.cmdCancel = nil
		c.mu.Unlock()
		cancel()
	}()

	log := c.logger.WithFields(logrus.Fields{"command": verb, "args": args})
	log.Debug("Executing command")

	err := cmd.run(cmdCtx, args)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		log.Debug("Command interrupted")
	case errors.Is(err, gatt.ErrNoSubscriptions):
		// Reported, but an empty subscription set is not a failure
		c.out.Error(err)
	default:
		n := c.session.Record(err)
		log.WithError(err).WithField("errors", n).Debug("Command failed")
		c.out.Error(err)
	}

	if cmd.settle {
		time.Sleep(c.opts.SettleDelay)
	}
	return false
}

// Interrupt handles Ctrl+C: it releases an outstanding wait or delay, else
// cancels the running command, else stops the console.
func (c *Console) Interrupt() {
	if c.session.Waiter().Cancel() {
		c.logger.Debug("Interrupt released a wait")
		return
	}

	c.mu.Lock()
	cmdCancel, stop := c.cmdCancel, c.stop
	c.mu.Unlock()

	if cmdCancel != nil {
		c.logger.Debug("Interrupt cancelled the running command")
		cmdCancel()
		return
	}
	c.out.Infof("\nblecon is terminated")
	if stop != nil {
		stop()
	}
}
