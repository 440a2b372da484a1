// Command wsclient dumps the frames a bazed backend sends.
// Usage: go run ./cmd/wsclient [-open <document-id>] ws://127.0.0.1:6969/
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/bazed/frontend/internal/protocol"
)

func main() {
	openDoc := flag.String("open", "", "Request a view of this document id after connecting")
	flag.Parse()

	url := "ws://127.0.0.1:6969/"
	if flag.NArg() > 0 {
		url = flag.Arg(0)
	}

	fmt.Printf("Connecting to %s...\n", url)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Println("Connected! Waiting for messages...")

	if *openDoc != "" {
		data, err := protocol.Encode(protocol.NewViewOpenedMessage(uuid.NewString(), *openDoc, 200, 40))
		if err == nil {
			err = conn.WriteMessage(websocket.TextMessage, data)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to request view: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Sent %s\n", data)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	messageCount := 0

	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					fmt.Printf("Read error: %v\n", err)
				}
				return
			}

			messageCount++
			fmt.Printf("[%d] %s\n", messageCount, describe(data))
		}
	}()

	select {
	case <-done:
		fmt.Println("Connection closed")
	case <-interrupt:
		fmt.Println("Interrupted")
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}

	fmt.Printf("Total messages received: %d\n", messageCount)
}

// describe summarizes one inbound frame.
func describe(data []byte) string {
	msg, err := protocol.Decode(data)
	if err != nil {
		return fmt.Sprintf("%v: %s", err, data)
	}

	switch p := msg.Params.(type) {
	case protocol.OpenDocumentParams:
		return fmt.Sprintf("method=%s document=%s path=%q", msg.Method, p.DocumentID, p.Path)
	case protocol.OpenViewParams:
		return fmt.Sprintf("method=%s view=%s document=%s lines=%d", msg.Method, p.ViewID, p.DocumentID, len(p.ViewData.Text))
	case protocol.UpdateViewParams:
		s := fmt.Sprintf("method=%s view=%s", msg.Method, p.ViewID)
		if p.FirstLine != nil {
			s += fmt.Sprintf(" first_line=%d", *p.FirstLine)
		}
		if p.Text != nil {
			s += fmt.Sprintf(" lines=%d", len(p.Text))
		}
		if p.Carets != nil {
			s += fmt.Sprintf(" carets=%d", len(p.Carets))
		}
		return s
	case protocol.ViewOpenedResponseParams:
		return fmt.Sprintf("method=%s request=%s view=%s", msg.Method, p.RequestID, p.ViewID)
	default:
		return fmt.Sprintf("method=%s", msg.Method)
	}
}
