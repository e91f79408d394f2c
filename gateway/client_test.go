package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/nftescrow/enclaveapi"
)

// fakeEnclave accepts one connection, reads until the client half-closes,
// and answers with reply(request).
func fakeEnclave(t *testing.T, reply func(req []byte) any) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				var buf bytes.Buffer
				if _, err := io.Copy(&buf, c); err != nil {
					return
				}
				_ = json.NewEncoder(c).Encode(reply(buf.Bytes()))
			}(conn)
		}
	}()
	return listener.Addr().String()
}

func TestTCPClientRoundTrip(t *testing.T) {
	addr := fakeEnclave(t, func(req []byte) any {
		var r enclaveapi.GetAuctionRequest
		if err := json.Unmarshal(req, &r); err != nil {
			return enclaveapi.Response{ErrorCode: "bad_request", Message: err.Error()}
		}
		return enclaveapi.Response{
			Type:      r.Type,
			Success:   true,
			AuctionID: &r.AuctionID,
			Auction:   &enclaveapi.AuctionView{ID: r.AuctionID, TokenID: "7"},
		}
	})

	client := NewTCPClient(addr, time.Second)
	var resp enclaveapi.Response
	err := client.Call(context.Background(), enclaveapi.GetAuctionRequest{Type: enclaveapi.TypeGetAuction, AuctionID: 5}, &resp)
	assert.NoError(t, err)
	check.True(t, resp.Success)
	check.Equal(t, enclaveapi.TypeGetAuction, resp.Type)
	check.Equal(t, uint64(5), *resp.AuctionID)
	check.Equal(t, "7", resp.Auction.TokenID)
}

func TestTCPClientDialFailure(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	addr := listener.Addr().String()
	assert.NoError(t, listener.Close())

	client := NewTCPClient(addr, time.Second)
	var resp enclaveapi.Response
	err = client.Call(context.Background(), map[string]string{"type": "ping"}, &resp)
	check.Error(t, err)
}

func TestTCPClientTimeout(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NoError(t, err)
	t.Cleanup(func() { listener.Close() })

	// Accept and never answer
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(2 * time.Second)
	}()

	client := NewTCPClient(listener.Addr().String(), 100*time.Millisecond)
	var resp enclaveapi.Response
	start := time.Now()
	err = client.Call(context.Background(), map[string]string{"type": "ping"}, &resp)
	check.Error(t, err)
	check.True(t, time.Since(start) < time.Second)
}
