// Package main is the command-line client: it keeps household records in a
// local database, queues offline mutations and reconciles them with the
// server when connectivity allows.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/paperkeep/paperkeep/internal/client/store"
	"github.com/paperkeep/paperkeep/internal/client/syncer"
	"github.com/paperkeep/paperkeep/internal/logger"
	"github.com/paperkeep/paperkeep/internal/models"
)

var (
	version   string
	buildDate string
)

// register creates an account on the server and prints the issued token.
func register(baseURL, login string) error {
	body, _ := json.Marshal(map[string]string{"login": login})
	resp, err := http.Post(baseURL+"/register", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}
	defer resp.Body.Close()

	var result struct {
		Token string `json:"token"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("register failed: %s", result.Error)
	}
	fmt.Println("Registered. Token:")
	fmt.Println(result.Token)
	return nil
}

// repl runs the interactive shell loop for managing records and syncing.
func repl(st *store.Store, s *syncer.Syncer, transport *syncer.HTTPTransport) {
	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)

	s.SetOnline(true)

	for {
		fmt.Print("paperkeep> ")
		if !scanner.Scan() {
			break
		}
		args := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(args) == 0 {
			continue
		}
		switch args[0] {
		case "help":
			fmt.Println("Commands: help, add-receipt <merchant> <total>, add-bill <provider> <amount>,")
			fmt.Println("  list <entityType>, delete <entityType> <id>, sync, status, pull,")
			fmt.Println("  online, offline, exit")
		case "add-receipt":
			if len(args) < 3 {
				fmt.Println("Usage: add-receipt <merchant> <total>")
				continue
			}
			total, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				fmt.Println("total must be a number")
				continue
			}
			rec := models.Receipt{ID: uuid.NewString(), Merchant: &args[1], Total: &total}
			if err := st.AddReceipt(ctx, rec); err != nil {
				fmt.Println("error:", err)
				continue
			}
			s.NotifyMutation()
			fmt.Println("added receipt", rec.ID)
		case "add-bill":
			if len(args) < 3 {
				fmt.Println("Usage: add-bill <provider> <amount>")
				continue
			}
			amount, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				fmt.Println("amount must be a number")
				continue
			}
			bill := models.HouseholdBill{ID: uuid.NewString(), Provider: &args[1], Amount: &amount}
			if err := st.AddHouseholdBill(ctx, bill); err != nil {
				fmt.Println("error:", err)
				continue
			}
			s.NotifyMutation()
			fmt.Println("added bill", bill.ID)
		case "list":
			if len(args) < 2 {
				fmt.Println("Usage: list <entityType>")
				continue
			}
			payloads, err := st.ListActive(ctx, models.EntityType(args[1]))
			if err != nil {
				fmt.Println("error:", err)
				continue
			}
			for _, p := range payloads {
				fmt.Println(string(p))
			}
			fmt.Printf("%d record(s)\n", len(payloads))
		case "delete":
			if len(args) < 3 {
				fmt.Println("Usage: delete <entityType> <id>")
				continue
			}
			if err := st.Delete(ctx, models.EntityType(args[1]), args[2]); err != nil {
				fmt.Println("error:", err)
				continue
			}
			s.NotifyMutation()
			fmt.Println("deleted")
		case "sync":
			if err := s.TriggerSync(ctx); err != nil {
				fmt.Println("error:", err)
			}
		case "status":
			status := s.Status()
			fmt.Printf("state: %s, pending: %d, attempts: %d\n",
				status.State, status.PendingCount, status.Attempts)
			if !status.LastSyncedAt.IsZero() {
				fmt.Println("last synced:", status.LastSyncedAt)
			}
			if status.LastError != "" {
				fmt.Println("last error:", status.LastError)
			}
		case "pull":
			for _, t := range models.EntityTypes {
				records, err := transport.FetchRecords(ctx, t)
				if err != nil {
					fmt.Println("error:", err)
					break
				}
				for _, raw := range records {
					var row struct {
						ID string `json:"id"`
					}
					if err := json.Unmarshal(raw, &row); err != nil || row.ID == "" {
						continue
					}
					if err := st.ApplyRemote(ctx, t, row.ID, raw); err != nil {
						fmt.Println("error:", err)
					}
				}
			}
			fmt.Println("pull complete")
		case "online":
			s.SetOnline(true)
			fmt.Println("online")
		case "offline":
			s.SetOnline(false)
			fmt.Println("offline")
		case "exit":
			fmt.Println("Bye")
			return
		default:
			fmt.Println("Unknown command. Type 'help' for a list of commands.")
		}
	}
}

// main parses command-line flags and dispatches to register or shell.
func main() {
	var (
		cmd      string
		baseURL  string
		dbPath   string
		token    string
		loginStr string
		showVer  bool
	)

	flag.StringVar(&cmd, "cmd", "", "command: register | shell")
	flag.StringVar(&baseURL, "url", "http://localhost:8080", "server base URL")
	flag.StringVar(&dbPath, "db", "paperkeep.db", "path to local database")
	flag.StringVar(&token, "token", "", "bearer token for sync")
	flag.StringVar(&loginStr, "login", "", "username for registration")
	flag.BoolVar(&showVer, "version", false, "show build version and date")
	flag.Parse()

	if showVer {
		fmt.Printf("Paperkeep Client\nVersion: %s\nBuild Date: %s\n", version, buildDate)
		return
	}

	switch cmd {
	case "register":
		if loginStr == "" {
			log.Fatal("please provide -login=username")
		}
		if err := register(baseURL, loginStr); err != nil {
			log.Fatal(err)
		}
	case "shell":
		if token == "" {
			log.Fatal("please provide -token (run -cmd register first)")
		}
		zl := logger.New()
		if err := zl.Init("Error"); err != nil {
			log.Fatal(err)
		}
		defer func() { _ = zl.Log.Sync() }()

		st, err := store.Open(dbPath)
		if err != nil {
			log.Fatal(err)
		}
		defer st.Close()

		transport := syncer.NewHTTPTransport(baseURL, token)
		s := syncer.New(st, transport, zl.Log, syncer.Options{})
		s.OnStatus(func(status syncer.Status) {
			if status.State == syncer.StateError {
				fmt.Printf("\nsync failed permanently (%s); run 'sync' to retry\n", status.LastError)
			}
		})

		repl(st, s, transport)
	default:
		log.Fatalf("unknown command: %s", cmd)
	}
}
