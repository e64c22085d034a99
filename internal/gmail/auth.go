package gmail

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	credentialsFile = "client_secret.json"
	tokenFile       = "token.json"
	redirectTimeout = 120 * time.Second
)

// NewService initializes an OAuth-backed Gmail service using the client
// credentials and token cache in configDir. A missing or rejected token
// starts the browser consent flow on stderr/stdin.
func NewService(ctx context.Context, configDir string, log *slog.Logger) (*gmailv1.Service, error) {
	credPath := filepath.Join(configDir, credentialsFile)
	b, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials at %s: %w", credPath, err)
	}

	cfg, err := google.ConfigFromJSON(b, gmailv1.GmailModifyScope, gmailv1.GmailLabelsScope)
	if err != nil {
		return nil, fmt.Errorf("parse oauth config: %w", err)
	}

	tokPath := filepath.Join(configDir, tokenFile)
	if tok, err := readToken(tokPath); err == nil {
		svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
		if err == nil {
			_, err = svc.Users.GetProfile("me").Context(ctx).Do()
		}
		if err == nil {
			return svc, nil
		}
		log.Warn("cached token rejected, re-authenticating", "error", err)
		_ = os.Remove(tokPath)
	}

	tok, err := tokenFromWeb(ctx, cfg, os.Stdin, os.Stderr)
	if err != nil {
		return nil, err
	}
	if err := saveToken(tokPath, tok); err != nil {
		return nil, fmt.Errorf("save token: %w", err)
	}

	svc, err := gmailv1.NewService(ctx, option.WithHTTPClient(cfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return svc, nil
}

func readToken(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var tok oauth2.Token
	if err := json.NewDecoder(f).Decode(&tok); err != nil {
		return nil, err
	}
	return &tok, nil
}

func saveToken(path string, tok *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// tokenFromWeb captures the auth code on a loopback listener and falls back
// to a pasted code or redirect URL when the redirect does not arrive.
func tokenFromWeb(ctx context.Context, cfg *oauth2.Config, in io.Reader, out io.Writer) (*oauth2.Token, error) {
	codeCh := make(chan string, 1)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err == nil {
		redirect := fmt.Sprintf("http://127.0.0.1:%d/", ln.Addr().(*net.TCPAddr).Port)
		oldRedirect := cfg.RedirectURL
		cfg.RedirectURL = redirect

		mux := http.NewServeMux()
		srv := &http.Server{ReadHeaderTimeout: 5 * time.Second, Handler: mux}
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
			code := r.URL.Query().Get("code")
			if code == "" {
				http.Error(w, "Missing 'code' parameter", http.StatusBadRequest)
				return
			}
			_, _ = fmt.Fprintln(w, "Authentication complete. You can close this window.")
			select {
			case codeCh <- code:
			default:
			}
			go func() { _ = srv.Shutdown(context.Background()) }()
		})
		go func() { _ = srv.Serve(ln) }()

		_, _ = fmt.Fprintln(out, "Open this URL in your browser to authorize mailrules:")
		_, _ = fmt.Fprintln(out, cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce))
		_, _ = fmt.Fprintf(out, "Waiting for redirect on %s\n", redirect)

		select {
		case <-ctx.Done():
			cfg.RedirectURL = oldRedirect
			_ = srv.Shutdown(context.Background())
			return nil, ctx.Err()
		case code := <-codeCh:
			tok, err := cfg.Exchange(ctx, strings.TrimSpace(code))
			cfg.RedirectURL = oldRedirect
			if err != nil {
				return nil, fmt.Errorf("token exchange: %w", err)
			}
			return tok, nil
		case <-time.After(redirectTimeout):
			cfg.RedirectURL = oldRedirect
			_ = srv.Shutdown(context.Background())
			_, _ = fmt.Fprintln(out, "Timeout waiting for redirect; falling back to manual paste.")
		}
	}

	_, _ = fmt.Fprintln(out, "Open this URL in your browser to authorize mailrules:")
	_, _ = fmt.Fprintln(out, cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline, oauth2.ApprovalForce))
	_, _ = fmt.Fprint(out, "Paste the auth code or the full redirect URL: ")

	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 1024), 1024*1024)
	if !sc.Scan() {
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("read auth code: %w", err)
		}
		return nil, errors.New("empty authorization code")
	}
	code, err := codeFromInput(sc.Text())
	if err != nil {
		return nil, err
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange: %w", err)
	}
	return tok, nil
}

// codeFromInput accepts either a bare auth code or a redirect URL carrying one.
func codeFromInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", errors.New("empty authorization code")
	}
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return input, nil
	}
	u, err := url.Parse(input)
	if err != nil {
		return "", fmt.Errorf("parse redirect URL: %w", err)
	}
	code := u.Query().Get("code")
	if code == "" {
		return "", errors.New("no 'code' parameter found in pasted URL")
	}
	return code, nil
}
