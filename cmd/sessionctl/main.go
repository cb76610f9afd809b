// Command sessionctl logs in to a running server and keeps the session alive
// from the client side.
//
//	sessionctl -url http://localhost:8080 -user admin me
//	sessionctl -url http://localhost:8080 -user admin watch
package main

import (
	"CatalogAuth/internal/client"
	"CatalogAuth/internal/logging"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"
)

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "адрес сервера")
	username := flag.String("user", "admin", "имя пользователя")
	interval := flag.Duration("interval", time.Minute, "период проверки сессии для watch")
	flag.Parse()

	command := flag.Arg(0)
	if command == "" {
		command = "me"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, command, *baseURL, *username, *interval); err != nil {
		fmt.Fprintln(os.Stderr, "ошибка:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command, baseURL, username string, interval time.Duration) error {
	logger := logging.New("development")
	manager, err := client.New(baseURL,
		client.WithLogger(logger),
		client.WithCheckInterval(interval),
		client.WithReauthHandler(func() { fmt.Fprintln(os.Stderr, "сессия завершена, требуется повторный вход") }),
	)
	if err != nil {
		return err
	}

	password := os.Getenv("ADMIN_PASSWORD")
	if password == "" {
		password, err = readPassword()
		if err != nil {
			return err
		}
	}
	if err := manager.Login(ctx, username, password); err != nil {
		return fmt.Errorf("вход не выполнен: %w", err)
	}
	defer func() {
		if err := manager.Logout(context.WithoutCancel(ctx)); err != nil {
			logger.Warn(ctx, "logout failed", "error", err)
		}
	}()

	switch command {
	case "me":
		return printMe(ctx, manager)
	case "watch":
		return watch(ctx, manager, interval)
	case "logout":
		return nil
	}
	return fmt.Errorf("неизвестная команда %q", command)
}

func watch(ctx context.Context, manager *client.SessionManager, interval time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- manager.Run(ctx) }()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := printMe(ctx, manager); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		select {
		case <-ctx.Done():
			return <-errCh
		case err := <-errCh:
			return err
		case <-ticker.C:
		}
	}
}

func printMe(ctx context.Context, manager *client.SessionManager) error {
	response, err := manager.AuthenticatedRequest(ctx, http.MethodGet, "/api/auth/me", nil)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s", time.Now().Format(time.TimeOnly), body)
	return nil
}

func readPassword() (string, error) {
	fmt.Fprint(os.Stderr, "Пароль: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("не удалось прочитать пароль: %w", err)
	}
	return string(password), nil
}
