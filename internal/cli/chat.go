package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oslianyabel/basic-wa-bot/internal/daemon"
	"github.com/oslianyabel/basic-wa-bot/pkg/agent"
	"github.com/oslianyabel/basic-wa-bot/pkg/message"
)

// consoleUserID is the conversation key of the console chat
const consoleUserID = "console"

const chatHelp = `Comandos disponibles:
  /exit, quit, :q  - Salir del chat
  /reset           - Reiniciar conversación
  /help            - Mostrar esta ayuda

Escribe tu mensaje para chatear con el asistente.`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant from the terminal",
	Long: `Start an interactive chat with the assistant. It uses the same
agent, tools and user registry as the webhook server, with the user id
"console". Logs go to stderr.`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := setupLogger(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer log.Close()

	core, err := daemon.NewCore(cfg, log.Zerolog())
	if err != nil {
		return err
	}
	defer core.Close()

	return chatLoop(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), core.Agent)
}

// chatLoop reads lines from in until EOF or an exit command and prints the
// assistant's replies to out
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, a *agent.Agent) error {
	if ctx == nil {
		ctx = context.Background()
	}

	fmt.Fprintln(out, "wabridge console chat")
	fmt.Fprintln(out, "Comandos: /exit (salir), /reset (reiniciar), /help (ayuda)")

	opts := agent.RunOptions{
		OnReasoning: func(summaries []string) {
			for _, s := range summaries {
				fmt.Fprintf(out, "  (razonamiento) %s\n", s)
			}
		},
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "\nUsuario: ")
		if !scanner.Scan() {
			fmt.Fprintln(out, "\nSaliendo del chat...")
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		switch strings.ToLower(input) {
		case "/exit", "quit", ":q":
			fmt.Fprintln(out, "¡Hasta luego!")
			return nil
		case "/reset":
			store := a.Store()
			store.Delete(consoleUserID)
			if err := store.Append(consoleUserID, "Conversación reiniciada.", message.RoleDeveloper); err != nil {
				return err
			}
			fmt.Fprintln(out, "Conversación reiniciada")
			continue
		case "/help":
			fmt.Fprintln(out, chatHelp)
			continue
		}

		fmt.Fprintln(out, "Procesando...")
		reply, err := a.Run(ctx, consoleUserID, input, opts)
		if err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
			continue
		}
		fmt.Fprintf(out, "Asistente: %s\n", reply)
	}
}
