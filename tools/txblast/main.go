// txblast is a websocket load generator: it opens N connections to a node's
// jsonrpc endpoint and pushes kvstore transactions at a fixed rate.
//
// Adapted from the tm-bench transacter.
package main

import (
	"encoding/json"
	"flag"
	"fmt"

	// it is ok to use math/rand here: we do not need a cryptographically secure random
	// number generator here and we can run the tests a bit faster
	"math/rand"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/tendermint/tendermint/libs/log"
	rpctypes "github.com/tendermint/tendermint/rpc/jsonrpc/types"
)

const (
	sendTimeout = 10 * time.Second
	// see the jsonrpc server handlers for the ping period contract
	pingPeriod = (30 * 9 / 10) * time.Second
)

type transacter struct {
	Target            string
	Rate              int
	Connections       int
	Accounts          int
	BroadcastTxMethod string

	conns       []*websocket.Conn
	connsBroken []bool
	startingWg  sync.WaitGroup
	endingWg    sync.WaitGroup
	stopped     bool

	logger log.Logger
}

func newTransacter(target string, connections, rate, accounts int, broadcastTxMethod string) *transacter {
	return &transacter{
		Target:            target,
		Rate:              rate,
		Connections:       connections,
		Accounts:          accounts,
		BroadcastTxMethod: broadcastTxMethod,
		conns:             make([]*websocket.Conn, connections),
		connsBroken:       make([]bool, connections),
		logger:            log.NewNopLogger(),
	}
}

// SetLogger lets you set your own logger
func (t *transacter) SetLogger(l log.Logger) {
	t.logger = l
}

// Start opens N = `t.Connections` connections to the target and creates read
// and write goroutines for each connection.
func (t *transacter) Start() error {
	t.stopped = false

	for i := 0; i < t.Connections; i++ {
		c, err := connect(t.Target)
		if err != nil {
			return err
		}
		t.conns[i] = c
	}

	t.startingWg.Add(t.Connections)
	t.endingWg.Add(2 * t.Connections)
	for i := 0; i < t.Connections; i++ {
		go t.sendLoop(i)
		go t.receiveLoop(i)
	}

	t.startingWg.Wait()

	return nil
}

// Stop closes the connections.
func (t *transacter) Stop() {
	t.stopped = true
	t.endingWg.Wait()
	for _, c := range t.conns {
		c.Close()
	}
}

// receiveLoop reads messages from the connection (empty in case of
// `broadcast_tx_async`).
func (t *transacter) receiveLoop(connIndex int) {
	c := t.conns[connIndex]
	defer t.endingWg.Done()
	for {
		_, _, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.logger.Error(
					fmt.Sprintf("failed to read response on conn %d", connIndex),
					"err", err,
				)
			}
			return
		}
		if t.stopped || t.connsBroken[connIndex] {
			return
		}
	}
}

// sendLoop generates transactions at a given rate.
func (t *transacter) sendLoop(connIndex int) {
	started := false
	// Close the starting waitgroup, in the event that this fails to start
	defer func() {
		if !started {
			t.startingWg.Done()
		}
	}()
	c := t.conns[connIndex]

	pingsTicker := time.NewTicker(pingPeriod)
	txsTicker := time.NewTicker(1 * time.Second)
	defer func() {
		pingsTicker.Stop()
		txsTicker.Stop()
		t.endingWg.Done()
	}()

	var nonce uint64

	for {
		select {
		case <-txsTicker.C:
			startTime := time.Now()
			endTime := startTime.Add(time.Second)
			numTxSent := t.Rate

			if !started {
				t.startingWg.Done()
				started = true
			}

			for i := 0; i < t.Rate; i++ {
				nonce++
				tx := generateTx(connIndex, t.Accounts, nonce)

				paramsJSON, err := json.Marshal(map[string]interface{}{"tx": tx})
				if err != nil {
					fmt.Printf("failed to encode params: %v\n", err)
					os.Exit(1)
				}
				rawParamsJSON := json.RawMessage(paramsJSON)

				c.SetWriteDeadline(time.Now().Add(sendTimeout))
				err = c.WriteJSON(rpctypes.RPCRequest{
					JSONRPC: "2.0",
					ID:      rpctypes.JSONRPCStringID("txblast"),
					Method:  t.BroadcastTxMethod,
					Params:  rawParamsJSON,
				})
				if err != nil {
					err = errors.Wrap(err,
						fmt.Sprintf("txs send failed on connection #%d", connIndex))
					t.connsBroken[connIndex] = true
					t.logger.Error(err.Error())
					numTxSent = i
					break
				}

				// cache the time.Now() reads to throttle sends
				if i%5 == 0 {
					now := time.Now()
					if now.After(endTime) {
						// Plus one accounts for sending this tx
						numTxSent = i + 1
						break
					}
				}
			}

			timeToSend := time.Since(startTime)
			t.logger.Info(fmt.Sprintf("sent %d transactions", numTxSent), "took", timeToSend)
			if timeToSend < 1*time.Second {
				sleepTime := time.Second - timeToSend
				t.logger.Debug(fmt.Sprintf("connection #%d is sleeping for %v", connIndex, sleepTime))
				time.Sleep(sleepTime)
			}

		case <-pingsTicker.C:
			// go-rpc server closes the connection in the absence of pings
			c.SetWriteDeadline(time.Now().Add(sendTimeout))
			if err := c.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				err = errors.Wrap(err,
					fmt.Sprintf("failed to write ping message on conn #%d", connIndex))
				t.logger.Error(err.Error())
				t.connsBroken[connIndex] = true
			}
		}

		if t.stopped || t.connsBroken[connIndex] {
			return
		}
	}
}

// generateTx emits a kvstore transaction "sender:nonce:gas:key=value" with a
// random gas bid so the proposer path has something to order by.
func generateTx(connIndex, accounts int, nonce uint64) []byte {
	sender := fmt.Sprintf("acct-%d-%d", connIndex, rand.Intn(accounts))
	gas := rand.Intn(1000) + 1
	return []byte(fmt.Sprintf("%s:%d:%d:key-%d=value-%d", sender, nonce, gas, nonce, nonce))
}

func connect(host string) (*websocket.Conn, error) {
	u := url.URL{Scheme: "ws", Host: host, Path: "/websocket"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	return c, err
}

func main() {
	var (
		target      = flag.String("target", "localhost:26657", "node rpc host:port")
		rate        = flag.Int("rate", 100, "txs per second per connection")
		connections = flag.Int("connections", 1, "number of websocket connections")
		accounts    = flag.Int("accounts", 16, "number of simulated sender accounts")
		method      = flag.String("method", "broadcast_tx_async", "broadcast_tx_async|broadcast_tx_sync")
		duration    = flag.Int("duration", 0, "seconds to run (0 = until interrupted)")
	)
	flag.Parse()

	logger := log.NewTMLogger(log.NewSyncWriter(os.Stdout))

	t := newTransacter(*target, *connections, *rate, *accounts, *method)
	t.SetLogger(logger)
	if err := t.Start(); err != nil {
		logger.Error("failed to start", "err", err)
		os.Exit(1)
	}

	if *duration > 0 {
		time.Sleep(time.Duration(*duration) * time.Second)
		t.Stop()
		return
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	t.Stop()
}
