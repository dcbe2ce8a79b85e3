package main

import (
	"encoding/json"
	"fmt"
	"net"
	"time"

	"wisp/internal/protocol"
	"wisp/internal/transport"
)

// client is a short-lived framed connection to a running daemon.
type client struct {
	stream transport.Stream
	fr     *transport.FrameReader
	fw     *transport.FrameWriter
	nextId int
}

// dialDaemon connects to the daemon's tcp endpoint and authenticates when a
// token is supplied.
func dialDaemon(addr, token string) (*client, error) {
	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		return nil, fmt.Errorf("daemon not reachable at %s: %w", addr, err)
	}

	c := &client{stream: transport.WrapConn(conn)}
	c.fr = transport.NewFrameReader(c.stream)
	c.fw = transport.NewFrameWriter(c.stream)

	if token != "" {
		params, _ := json.Marshal(map[string]string{"token": token})
		if _, err := c.call("session/authenticate", params); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return c, nil
}

// call sends one request and waits for its response.
func (c *client) call(method string, params json.RawMessage) (any, error) {
	c.nextId++
	msg := &protocol.Message{
		Jsonrpc: "2.0",
		Id:      c.nextId,
		Method:  method,
		Params:  params,
	}
	if err := c.fw.WriteMessage(msg); err != nil {
		return nil, fmt.Errorf("sending %s: %w", method, err)
	}

	resp, err := c.fr.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", method, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%s failed: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
	}
	return resp.Result, nil
}

func (c *client) Close() error {
	return c.stream.Close()
}
