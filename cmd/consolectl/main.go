// The `consolectl` CLI talks to the console backend auth API.
//
// Usage:
//
//	consolectl signin [--api-url X]   — sign in, cache the session token
//	consolectl whoami [--json]        — show the authenticated identity
//	consolectl refresh                — refresh the cached session token
//	consolectl signout                — sign out and drop the cached token
//	consolectl test-users             — list fixture accounts (dev servers only)
//	consolectl version                — version info
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"golang.org/x/term"
)

var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]

	switch cmd {
	case "signin", "login":
		handleSignin(os.Args[2:])
	case "whoami", "me":
		handleWhoAmI(os.Args[2:])
	case "refresh":
		handleRefresh()
	case "signout", "logout":
		handleSignout()
	case "test-users":
		handleTestUsers(os.Args[2:])
	case "version":
		fmt.Printf("consolectl %s (commit: %s, built: %s)\n", version, gitCommit, buildDate)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`consolectl — dispatch console auth CLI

Usage:
  consolectl signin [options]       Sign in and cache the session token
    --api-url <url>                 Console API URL (default: env CONSOLE_API_URL)
    --username <name>               Username or email (prompted if omitted)
  consolectl whoami [--json]        Show authenticated identity + permissions
  consolectl refresh                Refresh the cached session token
  consolectl signout                Sign out and remove the cached token
  consolectl test-users             List fixture accounts (development servers only)
  consolectl version                Show version info`)
}

type principalResponse struct {
	User struct {
		ID          string     `json:"id"`
		Username    string     `json:"username"`
		Email       string     `json:"email"`
		Role        string     `json:"role"`
		Provenance  string     `json:"provenance"`
		IsTestUser  bool       `json:"isTestUser"`
		LastLogin   *time.Time `json:"lastLogin"`
		Permissions []string   `json:"permissions"`
	} `json:"user"`
}

func handleSignin(args []string) {
	apiURL := envOr("CONSOLE_API_URL", "")
	username := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--api-url":
			if i+1 < len(args) {
				i++
				apiURL = args[i]
			}
		case "--username":
			if i+1 < len(args) {
				i++
				username = args[i]
			}
		}
	}
	if apiURL == "" {
		fmt.Fprintln(os.Stderr, "Error: API URL required (--api-url or CONSOLE_API_URL)")
		os.Exit(1)
	}

	reader := bufio.NewReader(os.Stdin)
	if username == "" {
		fmt.Print("Username or email: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		username = strings.TrimSpace(line)
	}

	fmt.Print("Password: ")
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading password: %v\n", err)
		os.Exit(1)
	}

	client := &consoleAPIClient{
		baseURL:    strings.TrimSuffix(apiURL, "/"),
		httpClient: newAPIHTTPClient(),
	}

	var resp principalResponse
	err = client.postJSON("/auth/signin", map[string]string{
		"username": username,
		"password": string(raw),
	}, &resp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Signin failed: %v\n", err)
		os.Exit(1)
	}

	// The server also sets a cookie; the CLI keeps the bearer form.
	token := client.lastSetCookie
	if token == "" {
		fmt.Fprintln(os.Stderr, "Signin failed: no session token in response")
		os.Exit(1)
	}

	now := time.Now().UTC()
	path, err := saveTokenCache(tokenCache{
		APIURL:    strings.TrimSuffix(apiURL, "/"),
		Token:     token,
		IssuedAt:  now,
		ExpiresAt: now.Add(24 * time.Hour),
		Username:  resp.User.Username,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Signed in as %s (%s)\n", resp.User.Username, resp.User.Role)
	fmt.Printf("Session cached at %s\n", path)
}

func handleWhoAmI(args []string) {
	asJSON := len(args) > 0 && args[0] == "--json"

	client, err := newAPIClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var resp principalResponse
	if err := client.getJSON("/auth/me", &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if asJSON {
		b, _ := json.MarshalIndent(resp.User, "", "  ")
		fmt.Println(string(b))
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Username:\t%s\n", resp.User.Username)
	fmt.Fprintf(w, "Email:\t%s\n", resp.User.Email)
	fmt.Fprintf(w, "Role:\t%s\n", resp.User.Role)
	fmt.Fprintf(w, "Provenance:\t%s\n", resp.User.Provenance)
	fmt.Fprintf(w, "Test user:\t%v\n", resp.User.IsTestUser)
	if resp.User.LastLogin != nil {
		fmt.Fprintf(w, "Last login:\t%s\n", resp.User.LastLogin.Format(time.RFC3339))
	}
	if len(resp.User.Permissions) > 0 {
		fmt.Fprintf(w, "Permissions:\t%s\n", strings.Join(resp.User.Permissions, ", "))
	}
	_ = w.Flush()
}

func handleRefresh() {
	client, err := newAPIClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var resp principalResponse
	if err := client.postJSON("/auth/refresh", nil, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Refresh failed: %v\n", err)
		os.Exit(1)
	}

	token := client.lastSetCookie
	if token == "" {
		fmt.Fprintln(os.Stderr, "Refresh failed: no session token in response")
		os.Exit(1)
	}

	now := time.Now().UTC()
	if _, err := saveTokenCache(tokenCache{
		APIURL:    client.baseURL,
		Token:     token,
		IssuedAt:  now,
		ExpiresAt: now.Add(24 * time.Hour),
		Username:  resp.User.Username,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Session refreshed for %s\n", resp.User.Username)
}

func handleSignout() {
	if client, err := newAPIClient(); err == nil {
		_ = client.postJSON("/auth/signout", nil, nil)
	}
	if err := removeTokenCache(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Signed out")
}

func handleTestUsers(args []string) {
	asJSON := len(args) > 0 && args[0] == "--json"

	apiURL := envOr("CONSOLE_API_URL", "")
	if tok, err := loadTokenCache(); err == nil && tok.APIURL != "" {
		apiURL = tok.APIURL
	}
	if apiURL == "" {
		fmt.Fprintln(os.Stderr, "Error: API URL required (CONSOLE_API_URL or cached signin)")
		os.Exit(1)
	}

	client := &consoleAPIClient{
		baseURL:    strings.TrimSuffix(apiURL, "/"),
		httpClient: newAPIHTTPClient(),
	}

	var resp struct {
		Count int `json:"count"`
		Users []struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Email    string `json:"email"`
			Role     string `json:"role"`
			IsActive bool   `json:"isActive"`
		} `json:"users"`
	}
	if err := client.getJSON("/auth/test-users", &resp); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if asJSON {
		b, _ := json.MarshalIndent(resp, "", "  ")
		fmt.Println(string(b))
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "USERNAME\tEMAIL\tROLE\tACTIVE")
	for _, u := range resp.Users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%v\n", u.Username, u.Email, u.Role, u.IsActive)
	}
	_ = w.Flush()
}
