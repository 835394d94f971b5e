package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"tradingboard/internal/common"
	boardNet "tradingboard/internal/net"

	"github.com/gorilla/websocket"
)

func main() {
	// 1. CLI Parameter Parsing
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the board server")
	action := flag.String("action", "book",
		"Action to perform: ['book', 'feed', 'pause', 'resume', 'toggle', 'select', 'quantity', 'confirm', 'cancel', 'status', 'watch']")

	query := flag.String("q", "", "Search over borrower, facility and dealer")
	id := flag.String("id", "", "Order id to select")
	qty := flag.String("qty", "", "Quantity to execute, e.g. $25M (blank means the full amount)")
	flag.Parse()

	base := "http://" + *serverAddr + "/api/v1"
	client := &http.Client{Timeout: 5 * time.Second}

	// 2. Execute Action
	var err error
	switch strings.ToLower(*action) {
	case "book":
		err = printBook(client, base, *query)
	case "feed":
		err = call(client, http.MethodGet, base+"/feed", nil)
	case "pause", "resume", "toggle":
		err = call(client, http.MethodPost, base+"/feed/"+strings.ToLower(*action), nil)
	case "select":
		if *id == "" {
			log.Fatal("Error: -id is required for select")
		}
		err = call(client, http.MethodPost, base+"/orders/"+url.PathEscape(*id)+"/select", nil)
	case "quantity":
		body, _ := json.Marshal(map[string]string{"quantity": *qty})
		err = call(client, http.MethodPut, base+"/execution/quantity", body)
	case "confirm":
		err = call(client, http.MethodPost, base+"/execution/confirm", nil)
	case "cancel":
		err = call(client, http.MethodPost, base+"/execution/cancel", nil)
	case "status":
		err = call(client, http.MethodGet, base+"/execution", nil)
	case "watch":
		err = watch(*serverAddr, *query)
	default:
		log.Fatalf("Unknown action: %s", *action)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// call performs a request and prints the JSON response as is.
func call(client *http.Client, method, target string, body []byte) error {
	req, err := http.NewRequest(method, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("server responded %s", resp.Status)
	}
	return nil
}

type bookResponse struct {
	Query string         `json:"query"`
	Feed  string         `json:"feed"`
	Rows  []common.Order `json:"rows"`
}

func printBook(client *http.Client, base, query string) error {
	resp, err := client.Get(base + "/book?q=" + url.QueryEscape(query))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	var book bookResponse
	if err := json.NewDecoder(resp.Body).Decode(&book); err != nil {
		return fmt.Errorf("unable to decode book: %w", err)
	}

	fmt.Printf("Feed: %s | Query: %q | %d orders\n", book.Feed, book.Query, len(book.Rows))
	printRows(book.Rows)
	return nil
}

func printRows(rows []common.Order) {
	for _, o := range rows {
		fmt.Printf("%-36s  %-4s %-18s %-16s %-16s %-5s %8s %7s %4dbps\n",
			o.ID, strings.ToUpper(o.Side.String()), o.Borrower, o.Facility, o.Dealer,
			o.Rating, common.FormatAmount(o.Amount), o.Price.StringFixed(common.PricePlaces), o.SpreadBps)
	}
}

// watch streams the live book and executions until the connection drops.
func watch(serverAddr, query string) error {
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+serverAddr+"/ws", nil)
	if err != nil {
		return fmt.Errorf("unable to connect: %w", err)
	}
	defer conn.Close()
	fmt.Printf("Connected to %s\n", serverAddr)

	if query != "" {
		if err := conn.WriteJSON(boardNet.Message{Type: boardNet.QueryMessage, Query: query}); err != nil {
			return err
		}
	}

	for {
		var report boardNet.Report
		if err := conn.ReadJSON(&report); err != nil {
			return fmt.Errorf("connection lost: %w", err)
		}

		switch report.Type {
		case boardNet.BookReport:
			fmt.Printf("\n[BOOK] %d orders\n", len(report.Rows))
			printRows(report.Rows)
		case boardNet.ExecutionReport:
			fmt.Printf("\n[EXECUTION] %s\n", report.Execution)
		case boardNet.ErrorReport:
			fmt.Printf("\n[SERVER ERROR] %s\n", report.Error)
		}
	}
}
