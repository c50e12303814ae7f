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

package message

// QueryType classifies a Query for routing transforms.
type QueryType int

const (
	Read QueryType = iota
	Write
	ReadWrite
	SchemaChange
	PubSubMessage
)

func (t QueryType) String() string {
	switch t {
	case Read:
		return "Read"
	case Write:
		return "Write"
	case ReadWrite:
		return "ReadWrite"
	case SchemaChange:
		return "SchemaChange"
	case PubSubMessage:
		return "PubSubMessage"
	default:
		return "Unknown"
	}
}

// Column is one named, typed cell in a Query's bound values or a Response's
// result rows.
type Column struct {
	Name  string
	Value Value
}

// Row is an ordered sequence of columns, preserving wire order.
type Row []Column

// SelectColumn describes one projected column of a Read query in request
// order: the underlying column name and the alias (if any) it is returned
// under. Alias equals Name when the query has no AS clause for it. A
// column may repeat (e.g. `SELECT native_port, native_port`); each
// occurrence gets its own entry so by-position rewrites stay correct.
type SelectColumn struct {
	Name  string
	Alias string
}

// Query is a request-shaped message: a parsed (or pass-through) statement
// plus its bound values and routing namespace.
type Query struct {
	QueryString string
	QueryType   QueryType
	AST         any // opaque parsed form; codecs may populate a protocol-specific AST
	Values      []Column
	Namespace   []string // e.g. []string{"keyspace", "table"}
	PrimaryKey  []string

	// Select lists the projected columns of a Read query in response
	// order. Empty for `SELECT *` or for non-Read queries: the response
	// then carries the true underlying column names directly.
	Select []SelectColumn
}

// ResponseError is a backend-protocol-level error payload carried inside a
// Response (see BackendProtocolError in the error taxonomy) — this is a
// valid wire response that itself signals failure, not a transport fault.
type ResponseError struct {
	Kind    string
	Message string
}

// Response is a reply-shaped message, optionally referencing the query it
// answers and carrying either a result set or an error.
type Response struct {
	MatchingQuery *Query
	Result        []Row
	Error         *ResponseError
}

// Bypass is an opaque frame the core forwards without interpretation.
type Bypass struct {
	Raw []byte
}

// Message is one of Query, Response, or Bypass. Exactly one field is set.
type Message struct {
	Query    *Query
	Response *Response
	Bypass   *Bypass
}

// Messages is an ordered batch of Message, the unit every transform call
// operates on.
type Messages []Message

// Namespace returns the routing namespace of the first Query message in the
// batch, or nil if none is present. Routing transforms key off this.
func (m Messages) Namespace() []string {
	for _, msg := range m {
		if msg.Query != nil {
			return msg.Query.Namespace
		}
	}
	return nil
}

// IsBypass reports whether every message in the batch is an opaque Bypass
// frame — used by transforms that must pass such batches through untouched.
func (m Messages) IsBypass() bool {
	if len(m) == 0 {
		return false
	}
	for _, msg := range m {
		if msg.Bypass == nil {
			return false
		}
	}
	return true
}

// NewQueryMessages wraps a single Query in a Messages batch.
func NewQueryMessages(q Query) Messages {
	return Messages{{Query: &q}}
}

// NewResponseMessages wraps a single Response in a Messages batch.
func NewResponseMessages(r Response) Messages {
	return Messages{{Response: &r}}
}

// NewBypassMessages wraps raw bytes in a Messages batch.
func NewBypassMessages(raw []byte) Messages {
	return Messages{{Bypass: &Bypass{Raw: raw}}}
}
