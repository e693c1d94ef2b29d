package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/lewisedginton/organizer/internal/conversation"
	"github.com/lewisedginton/organizer/internal/orchestrator"
	"github.com/lewisedginton/organizer/internal/proactive"
	"github.com/lewisedginton/organizer/internal/voice"
	"github.com/lewisedginton/organizer/pkg/logger"
)

// ConsoleCommand returns the terminal front end for a voice session.
func ConsoleCommand() *cli.Command {
	return &cli.Command{
		Name:  "console",
		Usage: "Talk to the assistant from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "email",
				Usage:   "Owner identity used for history and memory",
				EnvVars: []string{"ORGANIZER_USER_EMAIL"},
			},
			&cli.StringFlag{
				Name:    "access-token",
				Usage:   "Google OAuth access token",
				EnvVars: []string{"GOOGLE_ACCESS_TOKEN"},
			},
			&cli.StringFlag{
				Name:    "refresh-token",
				Usage:   "Google OAuth refresh token",
				EnvVars: []string{"GOOGLE_REFRESH_TOKEN"},
			},
			&cli.BoolFlag{
				Name:  "continuous",
				Usage: "Listen again after every reply",
			},
		},
		Action: consoleAction,
	}
}

const consoleHelp = `Comandos: /ouvir, /parar, /continuo on|off, /sair. Qualquer outra linha é enviada como texto.`

func consoleAction(ctx *cli.Context) error {
	log := getLogger(ctx)

	cfg, err := loadConfig(ctx)
	if err != nil {
		log.Error("Failed to load config", logger.ErrorField(err))
		return err
	}

	app, err := newApplication(ctx.Context, cfg, log)
	if err != nil {
		log.Error("Failed to initialise application", logger.ErrorField(err))
		return err
	}
	defer app.Close()

	out := ctx.App.Writer
	session, err := voice.New(voice.Config{
		Recognizer: consoleRecognizer{},
		Assistant: consoleAssistant{
			orchestrator: app.orchestrator,
			scanner:      app.scanner,
			owner:        ctx.String("email"),
			creds: conversation.Credentials{
				AccessToken:  ctx.String("access-token"),
				RefreshToken: ctx.String("refresh-token"),
			},
		},
		Speaker:    consoleSpeaker{out: out},
		Logger:     log,
		Continuous: ctx.Bool("continuous"),
	})
	if err != nil {
		return fmt.Errorf("create voice session: %w", err)
	}

	printed := make(chan struct{})
	go func() {
		defer close(printed)
		printEvents(out, session.Events())
	}()

	fmt.Fprintln(out, consoleHelp)
	runConsole(ctx.App.Reader, session)

	session.Close()
	<-printed
	return nil
}

// runConsole feeds terminal lines into session until EOF or /sair.
func runConsole(in io.Reader, session *voice.Session) {
	scanner := bufio.NewScanner(in)
	var heard []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/sair":
			return
		case line == "/ouvir":
			heard = nil
			session.Start()
		case line == "/parar":
			session.Stop()
			heard = nil
		case strings.HasPrefix(line, "/continuo"):
			session.SetContinuous(strings.TrimSpace(strings.TrimPrefix(line, "/continuo")) != "off")
		case session.State() == voice.Listening:
			heard = append(heard, line)
			session.OnPartial(strings.Join(heard, " "))
		default:
			session.SubmitText(line)
		}
	}
}

func printEvents(out io.Writer, events <-chan voice.Event) {
	for ev := range events {
		switch ev.Kind {
		case voice.StateChanged:
			if ev.To == voice.Listening {
				fmt.Fprintln(out, "[ouvindo...]")
			}
		case voice.Warning:
			fmt.Fprintln(out, "[aviso] "+ev.Text)
		case voice.Error:
			fmt.Fprintln(out, "[erro] "+ev.Text)
		case voice.ProactiveAlert:
			fmt.Fprintln(out, "[alerta] "+ev.Alert.EventSummary)
		}
	}
}

type consoleRecognizer struct{}

func (consoleRecognizer) Start() error { return nil }
func (consoleRecognizer) Abort()       {}

// consoleSpeaker prints replies; playback ends as soon as the line is written.
type consoleSpeaker struct{ out io.Writer }

func (c consoleSpeaker) Speak(_ context.Context, text string, done func()) error {
	fmt.Fprintln(c.out, "J.A.R.V.I.S.: "+text)
	done()
	return nil
}

func (consoleSpeaker) Stop() {}

type consoleAssistant struct {
	orchestrator *orchestrator.Orchestrator
	scanner      *proactive.Scanner
	owner        string
	creds        conversation.Credentials
}

func (c consoleAssistant) Submit(ctx context.Context, message string, history []conversation.Turn) (conversation.Reply, error) {
	return c.orchestrator.HandleTurn(ctx, orchestrator.TurnRequest{
		Owner:       c.owner,
		Credentials: c.creds,
		Message:     message,
		History:     history,
	})
}

func (c consoleAssistant) Poll(ctx context.Context) (proactive.Result, error) {
	if c.owner == "" || !c.creds.Valid() {
		return proactive.Result{}, nil
	}
	return c.scanner.Scan(ctx, c.owner, c.creds), nil
}
