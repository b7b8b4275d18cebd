// Command sipagent is the SIP user agent CLI: it loads the config
// directory, brings up the SIP stack, registers the configured
// accounts and runs the interactive command loop. Module names given
// with -m or the config's module keys are parsed but not loaded: the
// module loader created here stays empty.
// Grounded on teacher's cmd/sip-tg-bridge/main.go (signal.NotifyContext
// shutdown, slog.NewTextHandler logger, config-then-transport-then-
// service construction order), generalized from one hardcoded Telegram
// bridge into a full multi-account SIP user agent.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/emiago/diago"

	"sipagent/internal/call"
	"sipagent/internal/cli"
	"sipagent/internal/codec"
	"sipagent/internal/config"
	"sipagent/internal/errs"
	"sipagent/internal/eventbus"
	"sipagent/internal/module"
	sipstack "sipagent/internal/sip"
	"sipagent/internal/ua"
)

func main() {
	os.Exit(run())
}

func run() int {
	flags, err := cli.Parse(os.Args[1:])
	if err != nil {
		cli.Usage()
		return cli.ExitUsageError
	}
	if flags.Help {
		cli.Usage()
		return 0
	}

	logOpts := &slog.HandlerOptions{}
	if flags.Verbose {
		logOpts.Level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, logOpts))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if flags.QuitAfter > 0 {
		var timeoutCancel context.CancelFunc
		ctx, timeoutCancel = context.WithTimeout(ctx, time.Duration(flags.QuitAfter)*time.Second)
		defer timeoutCancel()
	}

	dir, err := config.Dir(flags.ConfigDir)
	if err != nil {
		logger.Error("config dir resolution failed", "error", err)
		return 1
	}
	cfg, err := config.Load(dir)
	if err != nil {
		logger.Error("config load failed", "error", err)
		return 1
	}
	accountLines, err := config.LoadAccounts(dir)
	if err != nil {
		logger.Error("accounts load failed", "error", err)
		return 1
	}
	if _, err := config.InstanceUUID(dir); err != nil {
		logger.Warn("uuid persist failed", "error", err)
	}

	bus := eventbus.NewBus()
	codecRegistry := codec.NewRegistry()
	codec.RegisterG711(codecRegistry)
	codec.RegisterG722(codecRegistry)
	codec.RegisterTelephoneEvent(codecRegistry)

	stack, err := sipstack.New([]sipstack.Transport{{
		Proto:    "udp",
		BindHost: "0.0.0.0",
		BindPort: sipListenPort(cfg.SIPListen),
	}}, logger)
	if err != nil {
		logger.Error("sip stack init failed", "error", err)
		return 1
	}

	group := ua.NewGroup(bus)
	loader := module.NewLoader()
	defer loader.CloseAll()

	for _, acc := range accountLines {
		parsed, err := ua.FromConfig(acc)
		if err != nil {
			logger.Warn("account parse failed", "error", err, "aor", acc.AOR)
			continue
		}
		reg := &sipstack.Registerer{Stack: stack, AOR: parsed.AOR, RegHost: parsed.RegHost(), AuthUser: parsed.AuthUser, AuthPass: parsed.AuthPass}
		dialer := &sipstack.Dialer{Stack: stack, AuthUser: parsed.AuthUser, AuthPass: parsed.AuthPass}
		u := ua.New(parsed, reg, dialer, bus)
		group.Add(u)
		u.Register(ctx)
	}

	inbound := newInboundTracker()
	commands := cli.NewRegistry()
	registerCoreCommands(commands, group, inbound, logger)

	go func() {
		err := stack.Serve(ctx, func(in *diago.DialogServerSession) {
			handleInbound(ctx, in, bus, group, inbound, logger)
		})
		if err != nil && ctx.Err() == nil {
			logger.Error("sip serve failed", "error", err)
		}
	}()

	for _, c := range flags.ExecCmds {
		if out, err := commands.Run(ctx, c); err != nil {
			logger.Warn("exec command failed", "cmd", c, "error", err)
		} else if out != "" {
			fmt.Println(out)
		}
	}

	if !flags.Daemon {
		runInteractive(ctx, commands)
	} else {
		<-ctx.Done()
	}

	return 0
}

// inboundTracker holds the call awaiting a local "answer"/"hangup"
// command, since those commands take no argument and operate on the
// most recent incoming call.
type inboundTracker struct {
	mu   sync.Mutex
	last *call.Call
}

func newInboundTracker() *inboundTracker { return &inboundTracker{} }

func (t *inboundTracker) Set(c *call.Call) {
	t.mu.Lock()
	t.last = c
	t.mu.Unlock()
}

func (t *inboundTracker) Take() (*call.Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.last
	t.last = nil
	return c, c != nil
}

func handleInbound(ctx context.Context, in *diago.DialogServerSession, bus *eventbus.Bus, group *ua.Group, inbound *inboundTracker, logger *slog.Logger) {
	toAOR := ""
	if in.InviteRequest != nil {
		toAOR = in.InviteRequest.To().Address.String()
	}
	u, err := group.Find(toAOR)
	if err != nil {
		logger.Info("sip: no matching UA, rejecting", "to", toAOR)
		return
	}

	dialog := sipstack.WrapServerDialog(in)
	c := call.New(bus, u.Name(), dialog)
	if err := c.Invited(); err != nil {
		logger.Warn("call invited transition failed", "error", err)
		return
	}
	u.BindIncoming(c)
	inbound.Set(c)

	if err := in.Ringing(); err != nil {
		logger.Warn("sip ringing failed", "error", err)
	}
	_ = c.Ring()

	<-in.Context().Done()
}

func registerCoreCommands(reg *cli.Registry, group *ua.Group, inbound *inboundTracker, logger *slog.Logger) {
	reg.Register("dial", func(ctx context.Context, arg string) (string, error) {
		if arg == "" {
			return "", errs.New(errs.InvalidArgument, "dial requires a target URI")
		}
		u, err := group.Find("")
		if err != nil {
			return "", err
		}
		c, err := u.Connect(ctx, arg)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("dialing %s (call %s)", arg, c.ID()), nil
	})
	reg.Register("answer", func(ctx context.Context, arg string) (string, error) {
		c, ok := inbound.Take()
		if !ok {
			return "", errs.New(errs.NotFound, "no pending incoming call")
		}
		if err := c.Answer(ctx); err != nil {
			return "", err
		}
		return "answered " + c.ID(), nil
	})
	reg.Register("hangup", func(ctx context.Context, arg string) (string, error) {
		c, ok := inbound.Take()
		if !ok {
			return "", errs.New(errs.NotFound, "no call to hang up")
		}
		c.Close(200, "local hangup")
		return "hung up " + c.ID(), nil
	})
	reg.Register("callstat", func(ctx context.Context, arg string) (string, error) { return "", nil })
	reg.Register("uastat", func(ctx context.Context, arg string) (string, error) {
		var sb strings.Builder
		for _, u := range group.AllUAs() {
			sb.WriteString(u.Name())
			sb.WriteString(": ")
			sb.WriteString(strconv.Itoa(int(u.RegState())))
			sb.WriteString("\n")
		}
		return sb.String(), nil
	})
	reg.Register("reginfo", func(ctx context.Context, arg string) (string, error) { return "", nil })
	reg.Register("quit", func(ctx context.Context, arg string) (string, error) { return "bye", nil })
}

func runInteractive(ctx context.Context, commands *cli.Registry) {
	scanner := bufio.NewScanner(os.Stdin)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		out, err := commands.Run(ctx, line)
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		if out != "" {
			fmt.Println(out)
		}
		if strings.TrimSpace(line) == "quit" {
			return
		}
	}
}

func sipListenPort(listen string) int {
	_, port, err := parseHostPort(listen)
	if err != nil || port == 0 {
		return 5060
	}
	return port
}

func parseHostPort(hostport string) (string, int, error) {
	idx := strings.LastIndex(hostport, ":")
	if idx < 0 {
		return hostport, 0, fmt.Errorf("no port in %q", hostport)
	}
	port, err := strconv.Atoi(hostport[idx+1:])
	if err != nil {
		return hostport, 0, err
	}
	return hostport[:idx], port, nil
}
