package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/urbanflow/internal/orchestrator"
	"github.com/user/urbanflow/internal/simulation"
	"github.com/user/urbanflow/internal/types"
)

var chatSeed bool

func init() {
	chatCmd.Flags().BoolVar(&chatSeed, "seed", false, "start from the seeded demo conversation")
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the workspace in the terminal",
	Long: "Starts an ephemeral conversation session in the terminal. Messages are not\n" +
		"archived. Reply to a decision form with its option number; /status shows the\n" +
		"workflow and simulation state, /export <format> saves a report, /quit exits.",
	Args: cobra.NoArgs,
	RunE: runChat,
}

// chatPrinter renders agent messages as they land in the log, tracking the
// newest unresolved form so a numeric reply can resolve it.
type chatPrinter struct {
	mu          sync.Mutex
	pendingForm types.MessageID
	hasForm     bool
}

func (p *chatPrinter) print(msg types.Message) {
	if msg.Sender != types.SenderAgent {
		return
	}
	switch msg.Kind {
	case types.MessageStatus:
		fmt.Printf("  -- %s\n", msg.Text)
	case types.MessageForm:
		fmt.Println("agent: Please choose an option by replying with its number:")
		for i, opt := range msg.Form.Options {
			fmt.Printf("  %d. %s", i+1, opt.Label)
			if opt.ETAHint != "" {
				fmt.Printf(" (%s)", opt.ETAHint)
			}
			fmt.Println()
		}
		p.mu.Lock()
		p.pendingForm = msg.ID
		p.hasForm = true
		p.mu.Unlock()
	default:
		fmt.Printf("agent: %s\n", msg.Text)
	}
}

func (p *chatPrinter) form() (types.MessageID, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pendingForm, p.hasForm
}

func (p *chatPrinter) clearForm() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hasForm = false
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	gw := newGateway(cfg)
	sess := orchestrator.New(types.NewSessionKey("cli", strconv.Itoa(os.Getpid())), gw,
		orchestrator.WithTranscriptBudget(cfg.Chat.TranscriptTokens))

	printer := &chatPrinter{}
	sess.Log().Subscribe(printer.print)

	if gw.Configured() {
		fmt.Println("Connected to backend at", cfg.Backend.BaseURL)
	} else {
		fmt.Println("No backend configured; running in demo mode.")
	}

	if chatSeed {
		sess.SeedDemo()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Drive the simulation while a run is in flight.
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.Simulation.PollIntervalSecs) * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				sess.PollSimulation(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch {
		case line == "/quit" || line == "/exit":
			return nil

		case line == "/status":
			printStatus(sess)

		case strings.HasPrefix(line, "/export"):
			format := strings.TrimSpace(strings.TrimPrefix(line, "/export"))
			if format == "" {
				format = "pdf"
			}
			exportToFile(ctx, sess, format)

		default:
			if formID, ok := printer.form(); ok {
				if choice, err := strconv.Atoi(line); err == nil {
					resolveChatForm(ctx, sess, printer, formID, choice)
					continue
				}
			}
			if _, err := sess.OnUserText(ctx, line); err != nil {
				fmt.Println("error:", err)
			}
		}
	}
}

func resolveChatForm(ctx context.Context, sess *orchestrator.Session, printer *chatPrinter, formID types.MessageID, choice int) {
	formMsg, ok := sess.Log().Get(formID)
	if !ok || formMsg.Form == nil || choice < 1 || choice > len(formMsg.Form.Options) {
		fmt.Println("error: no such option")
		return
	}
	opt := formMsg.Form.Options[choice-1]
	if err := sess.OnFormResolved(ctx, formID, opt.ID); err != nil {
		fmt.Println("error:", err)
		return
	}
	printer.clearForm()
}

func printStatus(sess *orchestrator.Session) {
	fmt.Println("Workflow:")
	for _, step := range sess.Steps() {
		marker := " "
		switch step.Status {
		case types.StepActive:
			marker = ">"
		case types.StepCompleted:
			marker = "x"
		}
		fmt.Printf("  [%s] %s\n", marker, step.Label)
	}
	snap := sess.Simulation()
	fmt.Printf("Simulation: %s", snap.State)
	if snap.State == simulation.StateRunning {
		fmt.Printf(" (%d%%)", snap.Progress)
	}
	if snap.Results != nil {
		fmt.Printf(" - mean PET %.1f, peak PET %.1f", snap.Results.MeanPET, snap.Results.MaxPET)
	}
	fmt.Println()
}

func exportToFile(ctx context.Context, sess *orchestrator.Session, format string) {
	data := sess.ExportReport(ctx, format)
	if data == nil {
		fmt.Println("No report available to export.")
		return
	}
	name := fmt.Sprintf("urbanflow-report-%s.%s", time.Now().Format("20060102-150405"), format)
	if err := os.WriteFile(name, data, 0644); err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Println("Report written to", name)
}
