package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"github.com/srg/blecon/internal/codec"
	"github.com/srg/blecon/internal/device"
)

// minMeaningfulLength is the rendered length a retried read must exceed.
const minMeaningfulLength = 2

// Read reads the characteristic token names and prints its value.
func (e *Engine) Read(ctx context.Context, token string) error {
	if err := e.requireConnected(); err != nil {
		return err
	}
	target, h, err := e.resolve(ctx, token)
	if err != nil {
		return err
	}
	defer target.Release()

	data, err := h.Read(ctx)
	if err != nil {
		return fmt.Errorf("read %s: %w", target.Characteristic.Name(), err)
	}
	e.out.Value(codec.Decode(data, e.session.Format()))
	return nil
}

// Write parses "<target> <payload>" and writes the encoded payload with
// response. The payload is validated before anything is resolved.
func (e *Engine) Write(ctx context.Context, args string) error {
	if err := e.requireConnected(); err != nil {
		return err
	}
	token, payload, ok := splitTarget(args)
	if !ok {
		return fmt.Errorf("%w: usage: write <target> <payload>", ErrUsage)
	}
	data, err := e.encode(payload)
	if err != nil {
		return err
	}

	target, h, err := e.resolve(ctx, token)
	if err != nil {
		return err
	}
	defer target.Release()

	return e.write(ctx, target.Characteristic.Name(), h, data)
}

func (e *Engine) write(ctx context.Context, name string, h device.Characteristic, data []byte) error {
	e.logger.WithFields(logrus.Fields{
		"characteristic": name,
		"bytes":          len(data),
	}).Debug("Writing characteristic")

	if err := h.Write(ctx, data); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func (e *Engine) encode(payload string) ([]byte, error) {
	f := e.session.Format()
	if f.IsText() {
		payload = ExpandEscapes(payload)
	}
	return codec.Encode(payload, f)
}

// RetryRead reads token up to retries+1 times until the rendered value is
// meaningful, prints the final value and appends it to the retry log.
func (e *Engine) RetryRead(ctx context.Context, retries int, token string) error {
	if err := e.requireConnected(); err != nil {
		return err
	}
	if retries < 0 {
		return fmt.Errorf("%w: retries must not be negative", ErrUsage)
	}
	target, h, err := e.resolve(ctx, token)
	if err != nil {
		return err
	}
	defer target.Release()

	return e.retryRead(ctx, target.Characteristic.Name(), h, retries)
}

func (e *Engine) retryRead(ctx context.Context, name string, h device.Characteristic, retries int) error {
	log := e.logger.WithField("characteristic", name)

	text, err := e.readText(ctx, h)
	for i := 0; i < retries && !meaningful(text, err); i++ {
		log.WithFields(logrus.Fields{"try": i, "error": err}).Debug("Read not meaningful, retrying")
		if serr := sleep(ctx, e.opts.RetryInterval); serr != nil {
			return serr
		}
		text, err = e.readText(ctx, h)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	e.out.Value(text)
	if !meaningful(text, nil) {
		return fmt.Errorf("read %s: %w", name, ErrRetryTimeout)
	}
	if e.retryLog != nil {
		if err := e.retryLog.Append(text); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) readText(ctx context.Context, h device.Characteristic) (string, error) {
	data, err := h.Read(ctx)
	if err != nil {
		return "", err
	}
	return codec.Decode(data, e.session.Format()), nil
}

func meaningful(text string, err error) bool {
	return err == nil && utf8.RuneCountInString(text) > minMeaningfulLength
}

// WriteRetryRepeat parses "<repeats> <retries> <target> <payload>" and runs
// write followed by a retried read, repeating while the read times out or
// fails in the transport. repeats == 0 repeats until ctx is cancelled.
func (e *Engine) WriteRetryRepeat(ctx context.Context, args string) error {
	if err := e.requireConnected(); err != nil {
		return err
	}
	const usage = "usage: wrrr <repeats> <retries> <target> <payload>"

	repeatsTok, rest, _ := cutField(args)
	retriesTok, rest, _ := cutField(rest)
	repeats, err1 := strconv.Atoi(repeatsTok)
	retries, err2 := strconv.Atoi(retriesTok)
	if err1 != nil || err2 != nil || repeats < 0 || retries < 0 {
		return fmt.Errorf("%w: %s", ErrUsage, usage)
	}
	token, payload, ok := splitTarget(rest)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUsage, usage)
	}

	data, err := e.encode(payload)
	if err != nil {
		return err
	}
	target, h, err := e.resolve(ctx, token)
	if err != nil {
		return err
	}
	defer target.Release()
	name := target.Characteristic.Name()

	log := e.logger.WithFields(logrus.Fields{
		"characteristic": name,
		"repeats":        repeats,
		"retries":        retries,
	})

	var writeErrs []error
	for cycle := 1; ; cycle++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		log.WithField("cycle", cycle).Debug("Write-retry-repeat cycle")

		if err := e.write(ctx, name, h, data); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			writeErrs = append(writeErrs, err)
		}

		err := e.retryRead(ctx, name, h, retries)
		if errors.Is(err, context.Canceled) {
			return err
		}
		if !retryable(err) || (repeats != 0 && cycle >= repeats) {
			return errors.Join(append(writeErrs, err)...)
		}
	}
}

func retryable(err error) bool {
	return errors.Is(err, ErrRetryTimeout) || errors.Is(err, device.ErrTransport)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cutField splits s at the first run of whitespace after its first field.
func cutField(s string) (field, rest string, ok bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, "", s != ""
	}
	return s[:i], strings.TrimLeftFunc(s[i:], unicode.IsSpace), true
}

// splitTarget splits "<target> <payload>". Only the single separator after
// the target is consumed so text payloads keep their spacing.
func splitTarget(s string) (target, payload string, ok bool) {
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, "", false
	}
	_, size := utf8.DecodeRuneInString(s[i:])
	payload = s[i+size:]
	if strings.TrimSpace(payload) == "" {
		return s[:i], "", false
	}
	return s[:i], payload, true
}

// ExpandEscapes replaces the \t, \n and \r escapes typed on the console.
func ExpandEscapes(s string) string {
	return escapes.Replace(s)
}

var escapes = strings.NewReplacer(`\t`, "\t", `\n`, "\n", `\r`, "\r")
