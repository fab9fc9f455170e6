package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"collabtext/internal/client"
	"collabtext/internal/models"
)

const snapshotTimeout = 10 * time.Second

var (
	serverURL  string
	username   string
	documentID string

	dialer client.Dialer = client.WebsocketDialer{}
)

var rootCmd = &cobra.Command{
	Use:   "collabtext-client",
	Short: "Join a shared document from the terminal",
	Long: `Connects to a collabtext server, prints the shared document whenever it
changes and appends every line typed on stdin as "[name]: line".`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runClient(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.Flags().StringVarP(&serverURL, "server", "s", "ws://localhost:8080/ws", "websocket endpoint of the server")
	rootCmd.Flags().StringVarP(&username, "name", "n", "", "display name (prompted when empty)")
	rootCmd.Flags().StringVarP(&documentID, "document", "d", models.DefaultDocumentID, "document to join")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func runClient(ctx context.Context, in io.Reader, out io.Writer) error {
	lines := bufio.NewScanner(in)

	name := strings.TrimSpace(username)
	for name == "" {
		fmt.Fprint(out, "Enter your name: ")
		if !lines.Scan() {
			return client.ErrUsernameRequired
		}
		name = strings.TrimSpace(lines.Text())
	}

	sess := client.NewSession(serverURL, dialer)
	sess.SetDocumentID(documentID)

	var (
		outMu sync.Mutex
		once  sync.Once
	)
	ready := make(chan struct{})
	sess.OnChange(func(content string) {
		once.Do(func() { close(ready) })
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(out, "----- %s -----\n%s\n", documentID, content)
	})

	if err := sess.Start(ctx, name); err != nil {
		return err
	}

	runErr := make(chan error, 1)
	printed := make(chan struct{})
	go func() { runErr <- sess.Run(ctx) }()
	// closing the connection ends Run, which closes Errors()
	defer func() {
		_ = sess.Close()
		<-printed
	}()
	go func() {
		defer close(printed)
		for msg := range sess.Errors() {
			outMu.Lock()
			fmt.Fprintf(out, "error: %s\n", msg)
			outMu.Unlock()
		}
	}()

	select {
	case <-ready:
	case err := <-runErr:
		return fmt.Errorf("connection closed before the document loaded: %w", err)
	case <-time.After(snapshotTimeout):
		return errors.New("timed out waiting for the document")
	case <-ctx.Done():
		return nil
	}

	for lines.Scan() {
		sess.SetMessage(lines.Text())
		if err := sess.Send(); err != nil {
			return err
		}
	}
	return lines.Err()
}
