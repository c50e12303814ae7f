// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package transform

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"time"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
)

// Codec is the abstract boundary between a CodecDestination and whatever
// wire format an actual backend speaks. The chain engine has no opinion on
// wire codecs (a deliberate non-goal); CodecDestination only needs
// something that can turn a Messages batch into a Messages batch response.
type Codec interface {
	Send(ctx context.Context, m message.Messages) (message.Messages, error)
}

// cloneableCodec is implemented by codecs that hold per-connection state
// (e.g. a dialed socket) that must not be shared across a chain clone's
// CodecDestination. A codec that has no such state (LoopbackCodec) simply
// doesn't implement it, and CodecDestination.Clone keeps the original.
type cloneableCodec interface {
	Clone() Codec
}

// LoopbackCodec is a Codec that returns its input unchanged. It stands in
// for a real wire codec in tests and in topologies that want a terminal
// sink without a live backend.
type LoopbackCodec struct{}

func (LoopbackCodec) Send(_ context.Context, m message.Messages) (message.Messages, error) {
	return m, nil
}

// CodecDestination is a terminal transform that hands the request batch to
// a Codec and returns whatever it returns. It never calls CallNext: by
// construction it must be the last transform in its chain.
type CodecDestination struct {
	codec Codec
}

// NewCodecDestination builds a terminal sink delegating to codec.
func NewCodecDestination(codec Codec) *CodecDestination {
	return &CodecDestination{codec: codec}
}

func (c *CodecDestination) Name() string { return "CodecDestination" }

func (c *CodecDestination) PrepChain(*TransformChain) error { return nil }

func (c *CodecDestination) Clone() Transform {
	codec := c.codec
	if cc, ok := codec.(cloneableCodec); ok {
		codec = cc.Clone()
	}
	return &CodecDestination{codec: codec}
}

func (c *CodecDestination) Transform(ctx context.Context, wrapper *Wrapper) (message.Messages, error) {
	return c.codec.Send(ctx, wrapper.Message)
}

// TCPCodec forwards Bypass payloads verbatim to a single dialed backend
// connection, length-prefixing each frame with a big-endian uint32 so
// message boundaries survive the trip. It only understands Bypass frames:
// wire parsing belongs to the codec that produced the Message in the first
// place, so a Query or Response reaching a TCPCodec is a configuration
// mistake, not something it can serialize itself.
type TCPCodec struct {
	addr string

	mu   sync.Mutex
	conn net.Conn
}

// NewTCPCodec builds a Codec dialing addr lazily on the first Send.
func NewTCPCodec(addr string) *TCPCodec {
	return &TCPCodec{addr: addr}
}

// Clone returns a fresh, un-dialed TCPCodec pointed at the same address. The
// live socket is per-connection state: a chain clone backing a different
// client connection must dial its own backend connection rather than share
// the original's, even though both speak to the same addr.
func (c *TCPCodec) Clone() Codec { return NewTCPCodec(c.addr) }

func (c *TCPCodec) ensureConn() (net.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn, nil
	}
	conn, err := net.DialTimeout("tcp", c.addr, 5*time.Second)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return conn, nil
}

func (c *TCPCodec) Send(ctx context.Context, m message.Messages) (message.Messages, error) {
	if !m.IsBypass() {
		return nil, NewChainProcessingError("TCPCodec only forwards Bypass frames")
	}
	conn, err := c.ensureConn()
	if err != nil {
		return nil, &UpstreamError{Backend: c.addr, Cause: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	out := make(message.Messages, 0, len(m))
	for _, msg := range m {
		if err := writeFrame(conn, msg.Bypass.Raw); err != nil {
			c.dropConn()
			return nil, &UpstreamError{Backend: c.addr, Cause: err}
		}
		reply, err := readFrame(conn)
		if err != nil {
			c.dropConn()
			return nil, &UpstreamError{Backend: c.addr, Cause: err}
		}
		out = append(out, message.Message{Bypass: &message.Bypass{Raw: reply}})
	}
	return out, nil
}

func (c *TCPCodec) dropConn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

func writeFrame(w net.Conn, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

func readFrame(r net.Conn) ([]byte, error) {
	var header [4]byte
	if _, err := readFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	payload := make([]byte, n)
	if _, err := readFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func readFull(r net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Close releases the underlying connection, if one was ever dialed.
func (c *TCPCodec) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
