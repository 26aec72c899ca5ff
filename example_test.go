package websocket_test

import (
	"fmt"
	"log"
	"strings"

	"github.com/gwebsockets/websocket"
)

func ExampleNegotiate() {
	req := "GET /chat HTTP/1.1\r\n" +
		"Host: server.example.com\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"\r\n"

	resp, err := websocket.Negotiate([]byte(req), nil)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Print(strings.ReplaceAll(string(resp), "\r\n", "\n"))

	// Output:
	// HTTP/1.1 101 Switching Protocols
	// Upgrade: websocket
	// Connection: Upgrade
	// Sec-WebSocket-Accept: s3pPLMBiTxaQ9kYGzzhZRbK+xOo=
}

func ExampleSession() {
	client := websocket.NewSession(websocket.RoleClient, nil)
	server := websocket.NewSession(websocket.RoleServer, nil)

	req, err := client.HandshakeRequest("example.com", "/")
	if err != nil {
		log.Fatal(err)
	}
	resp, _, err := server.Feed(req)
	if err != nil {
		log.Fatal(err)
	}
	_, _, err = client.Feed(resp)
	if err != nil {
		log.Fatal(err)
	}

	b, err := client.Send(websocket.MessageText, []byte("hello"))
	if err != nil {
		log.Fatal(err)
	}

	// Deliver the frame one byte at a time like a slow network would.
	for i := range b {
		_, msgs, err := server.Feed(b[i : i+1])
		if err != nil {
			log.Fatal(err)
		}
		for _, msg := range msgs {
			fmt.Printf("%v %s\n", msg.Type, msg.Payload)
		}
	}

	// Output:
	// MessageText hello
}
