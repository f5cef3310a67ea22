package poolwire

import (
	"encoding/json"
	"fmt"
	"time"

	"torpydo/internal/netx"
)

// Register sends a register-or-heartbeat request to the pool index at
// addr, announcing self, and returns the requested heartbeat delay.
func Register(network netx.Network, addr netx.Addr, timeout time.Duration, self NodeEndpoint) (time.Duration, error) {
	conn, err := dial(network, addr, timeout)
	if err != nil {
		return 0, err
	}
	defer conn.Close()

	payload, err := json.Marshal(RegisterRequest{Host: self.Host, Port: self.Port})
	if err != nil {
		return 0, fmt.Errorf("poolwire: encode register request: %w", err)
	}
	req := Envelope{Type: MessageRegister, Payload: payload}

	if err := WriteFrame(conn, req); err != nil {
		return 0, fmt.Errorf("poolwire: register: %w", err)
	}

	var resp RegisterResponse
	if err := ReadFrame(conn, &resp); err != nil {
		return 0, fmt.Errorf("poolwire: register response: %w", err)
	}
	return time.Duration(resp.RequestedDelay * float64(time.Second)), nil
}

// List asks the pool index at addr for its current node listing.
func List(network netx.Network, addr netx.Addr, timeout time.Duration) ([]NodeEndpoint, error) {
	conn, err := dial(network, addr, timeout)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	req := Envelope{Type: MessageList}
	if err := WriteFrame(conn, req); err != nil {
		return nil, fmt.Errorf("poolwire: list: %w", err)
	}

	var resp ListResponse
	if err := ReadFrame(conn, &resp); err != nil {
		return nil, fmt.Errorf("poolwire: list response: %w", err)
	}
	return resp.Nodes, nil
}

func dial(network netx.Network, addr netx.Addr, timeout time.Duration) (netx.Conn, error) {
	var conn netx.Conn
	var err error
	if dialer, ok := network.(netx.TimeoutDialer); ok {
		conn, err = dialer.DialTimeout(addr, timeout)
	} else {
		conn, err = network.Dial(addr)
	}
	if err != nil {
		return nil, fmt.Errorf("poolwire: dial %s: %w", addr, err)
	}
	if timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(timeout))
	}
	return conn, nil
}
