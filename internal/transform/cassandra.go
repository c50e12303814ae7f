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
	"fmt"

	"github.com/gocql/gocql"

	"github.com/yuzhouchen-instaclustr/shotover-proxy/internal/message"
)

// CassandraDestination is a terminal sink that executes a Query against a
// real Cassandra cluster via gocql and maps the result set back into a
// Response. It never calls CallNext.
type CassandraDestination struct {
	session *gocql.Session
}

// NewCassandraDestination dials hosts with gocql's default cluster config
// pointed at keyspace. Called once at topology-build time; a dial failure
// there is a ConfigError, not a per-request UpstreamError.
func NewCassandraDestination(hosts []string, keyspace string) (*CassandraDestination, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, &ConfigError{Reason: fmt.Sprintf("connecting to cassandra: %v", err)}
	}
	return &CassandraDestination{session: session}, nil
}

func (c *CassandraDestination) Name() string { return "CassandraDestination" }

func (c *CassandraDestination) PrepChain(*TransformChain) error { return nil }

// Clone shares the underlying gocql session, which is safe for concurrent
// use by design, across every per-connection clone rather than dialing a
// new one per connection.
func (c *CassandraDestination) Clone() Transform { return &CassandraDestination{session: c.session} }

func (c *CassandraDestination) Transform(ctx context.Context, wrapper *Wrapper) (message.Messages, error) {
	out := make(message.Messages, 0, len(wrapper.Message))
	for _, m := range wrapper.Message {
		if m.Query == nil {
			out = append(out, m)
			continue
		}
		resp, err := c.execute(ctx, m.Query)
		if err != nil {
			return nil, &UpstreamError{Backend: "cassandra", Cause: err}
		}
		out = append(out, message.Message{Response: resp})
	}
	return out, nil
}

func (c *CassandraDestination) execute(ctx context.Context, q *message.Query) (*message.Response, error) {
	args := make([]any, 0, len(q.Values))
	for _, col := range q.Values {
		args = append(args, valueToGocql(col.Value))
	}
	iter := c.session.Query(q.QueryString, args...).WithContext(ctx).Iter()

	columns := iter.Columns()
	var rows []message.Row
	rowData := make(map[string]any, len(columns))
	for iter.MapScan(rowData) {
		row := make(message.Row, 0, len(columns))
		for _, col := range columns {
			row = append(row, message.Column{
				Name:  col.Name,
				Value: gocqlToValue(rowData[col.Name]),
			})
		}
		rows = append(rows, row)
		rowData = make(map[string]any, len(columns))
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return &message.Response{MatchingQuery: q, Result: rows}, nil
}

// valueToGocql unwraps a tagged Value into the plain Go type gocql's query
// binder expects.
func valueToGocql(v message.Value) any {
	switch v.Kind {
	case message.KindNull:
		return nil
	case message.KindBoolean:
		return v.Bool
	case message.KindFloat:
		return v.Float32
	case message.KindDouble, message.KindDecimal:
		return v.Float64
	case message.KindBlob:
		return v.Bytes
	case message.KindInet:
		return v.IP
	case message.KindUUID, message.KindTimeUUID:
		return v.UUID
	case message.KindAscii, message.KindVarchar, message.KindDate, message.KindTime:
		return v.Text
	default:
		return v.Int
	}
}

// gocqlToValue wraps a value scanned out of a gocql row back into the
// neutral tagged Value the rest of the chain deals in. gocql hands back
// driver-native Go types via MapScan; this maps the common ones.
func gocqlToValue(v any) message.Value {
	switch t := v.(type) {
	case nil:
		return message.Null
	case bool:
		return message.Value{Kind: message.KindBoolean, Bool: t}
	case int:
		return message.Value{Kind: message.KindInt, Int: int64(t)}
	case int64:
		return message.Value{Kind: message.KindBigint, Int: t}
	case float32:
		return message.Value{Kind: message.KindFloat, Float32: t}
	case float64:
		return message.Value{Kind: message.KindDouble, Float64: t}
	case string:
		return message.Value{Kind: message.KindVarchar, Text: t}
	case []byte:
		return message.Value{Kind: message.KindBlob, Bytes: t}
	case gocql.UUID:
		return message.Value{Kind: message.KindUUID, UUID: t}
	default:
		return message.Value{Kind: message.KindVarchar, Text: fmt.Sprintf("%v", t)}
	}
}
