package console

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/srg/blecon/internal/codec"
	"github.com/srg/blecon/internal/device"
	"github.com/srg/blecon/internal/engine"
	"github.com/srg/blecon/internal/gatt"
	"github.com/srg/blecon/internal/session"
)

type command struct {
	names  []string
	usage  string
	help   string
	quit   bool
	settle bool
	run    func(ctx context.Context, args string) error
}

func (c *Console) commandTable() []*command {
	return []*command{
		{names: []string{"help", "?"}, help: "show help information", run: c.help},
		{names: []string{"quit", "q", "exit"}, help: "quit from application", quit: true},
		{names: []string{"clear", "cls", "clr"}, help: "clear the screen", run: c.clear},
		{names: []string{"list", "ls"}, usage: "[w]", help: "show available BLE devices", run: c.list},
		{names: []string{"open"}, usage: "<name> or <#>", help: "connect to BLE device", run: c.engine.Open},
		{names: []string{"delay"}, usage: "<msec>", help: "pause execution for a certain number of milliseconds", run: c.delay},
		{names: []string{"timeout"}, usage: "<sec>", help: "show/change connection timeout, default value is 3 sec", run: c.timeout},
		{names: []string{"close"}, help: "disconnect from currently connected device", run: func(ctx context.Context, _ string) error {
			return c.engine.Close(ctx)
		}},
		{names: []string{"stat", "st"}, help: "shows current BLE device status", run: c.status},
		{names: []string{"print", "p"}, usage: "<text&vars>*", help: "prints text and variables to stdout, where variables are\n" +
			"%id - device ID\n" +
			"%addr - device address as a number\n" +
			"%mac - device MAC address\n" +
			"%name - device name\n" +
			"%stat - device connection status\n" +
			"%NOW, %now, %HH, %hh, %mm, %ss, %D, %d, %T, %t, %z - date/time variables", run: c.print},
		{names: []string{"format", "fmt"}, usage: "[data_format]", help: "show/change display format, can be ASCII/UTF8/Dec/Hex/Bin", run: c.format},
		{names: []string{"set"}, usage: "<service_name> or <#>", help: "set current service (for read/write operations)", run: c.engine.SelectService},
		{names: []string{"read", "r"}, usage: "<name>**", help: "read value from specific characteristic", run: c.engine.Read},
		{names: []string{"write", "w"}, usage: "<name>** <value>", help: "write value to specific characteristic", settle: true, run: c.engine.Write},
		{names: []string{"wrrr"}, usage: "<repeats> <retries> <name>** <value>", help: "write value and retry reading for retries times or until the value is meaningful;\n" +
			"the entire cycle is repeated for repeats times, 0 repeats until interrupted", run: c.engine.WriteRetryRepeat},
		{names: []string{"subs", "sub"}, usage: "<name>**", help: "subscribe to value change for specific characteristic", run: c.engine.Subscribe},
		{names: []string{"unsubs", "unsub"}, usage: "<name>** | all", help: "unsubscribe from value change for specific characteristic or all", run: c.engine.Unsubscribe},
		{names: []string{"wait"}, help: "wait for notification event on value change (you must be subscribed, see above)", run: c.wait},
	}
}

func (c *Console) banner() string {
	return fmt.Sprintf("blecon ver. %s\n", c.opts.Version)
}

func (c *Console) help(context.Context, string) error {
	var b strings.Builder
	b.WriteString(c.banner())
	b.WriteString("\n")
	for _, cmd := range c.commands {
		head := strings.Join(cmd.names, ", ")
		if cmd.usage != "" {
			head += " " + cmd.usage
		}
		for i, line := range strings.Split(cmd.help, "\n") {
			if i > 0 {
				head = ""
			}
			fmt.Fprintf(&b, "  %-40s: %s\n", head, line)
		}
	}
	b.WriteString("   * You can also use standard C language string formatting characters like \\t, \\n etc.\n")
	b.WriteString("  ** <name> could be \"service/characteristic\", or just a char name or # (for selected service)\n")
	c.out.Line("%s", b.String())
	return nil
}

func (c *Console) clear(context.Context, string) error {
	if !c.out.Redirected() {
		c.out.Text("\033[H\033[2J")
	}
	return nil
}

func (c *Console) list(_ context.Context, args string) error {
	lines := deviceLines(c.devices.Devices())
	if strings.EqualFold(strings.ReplaceAll(strings.TrimSpace(args), "/", ""), "w") {
		lines = wideLines(lines, c.opts.Width())
	}
	for _, line := range lines {
		c.out.Line("%s", line)
	}
	return nil
}

func (c *Console) delay(ctx context.Context, args string) error {
	d := c.session.Timeout()
	if ms, err := strconv.ParseUint(strings.TrimSpace(args), 10, 32); err == nil {
		d = time.Duration(ms) * time.Millisecond
	}
	_, err := c.session.Waiter().Wait(ctx, session.WaitDelay, d)
	return err
}

func (c *Console) wait(ctx context.Context, _ string) error {
	r, err := c.session.Waiter().Wait(ctx, session.WaitNotify, c.session.Timeout())
	if err != nil {
		return err
	}
	c.logger.WithField("result", r).Debug("Wait finished")
	return nil
}

func (c *Console) timeout(_ context.Context, args string) error {
	var err error
	if args = strings.TrimSpace(args); args != "" {
		sec, perr := strconv.ParseUint(args, 10, 32)
		if perr != nil {
			err = fmt.Errorf("%w: timeout must be a number of seconds", engine.ErrUsage)
		} else {
			err = c.session.SetTimeout(time.Duration(sec) * time.Second)
		}
	}
	c.out.Infof("Device connection timeout (sec): %d", int(c.session.Timeout().Seconds()))
	return err
}

func (c *Console) format(_ context.Context, args string) error {
	var err error
	if args = strings.TrimSpace(args); args != "" {
		var f codec.Format
		if f, err = codec.ParseFormat(args); err == nil {
			c.session.SetFormat(f)
		}
	}
	c.out.Infof("Current display format: %s", c.session.Format())
	return err
}

func (c *Console) print(_ context.Context, args string) error {
	text, err := expandPrint(args, c.session.Tree.Device(), c.opts.Now())
	if err != nil {
		return err
	}
	c.out.Text(text)
	return nil
}

func (c *Console) status(context.Context, string) error {
	tree := c.session.Tree
	p := tree.Device()
	switch {
	case p == nil:
		c.out.Line("No device connected.")
		return nil
	case p.Status() != device.Connected:
		c.out.Line("Device %s is disconnected.", p.Name())
		return nil
	}

	c.out.Line("Device %s is connected.", p.Name())
	if len(tree.Services()) == 0 {
		return nil
	}
	c.out.Line("Available services:")
	for i, svc := range tree.Services() {
		c.out.Line("%s: %s", gatt.FormatIndex(i), svc.Name())
	}
	if subs := c.engine.Subscriptions(); len(subs) > 0 {
		c.out.Line("Subscriptions: %s", strings.Join(subs, ", "))
	}

	svc := tree.SelectedService()
	if svc == nil {
		return nil
	}
	c.out.Line("Selected service: %s", svc.Name())
	if len(tree.Characteristics()) > 0 {
		c.out.Line("Available characteristics:")
		for i, ch := range tree.Characteristics() {
			c.out.Line("%s: %s\t%s", gatt.FormatIndex(i), ch.Name(), ch.Properties())
		}
	}
	if ch := tree.SelectedCharacteristic(); ch != nil {
		c.out.Line("Selected characteristic: %s", ch.Name())
	}
	return nil
}
