// Package oxidbtest runs an in-process oxidb-server speaking the wire
// protocol, backed by memory. It covers the commands the oxidb client uses.
package oxidbtest

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

type index struct {
	Name   string   `json:"name"`
	Fields []string `json:"fields"`
	Unique bool     `json:"unique"`
	Text   bool     `json:"text"`
}

type collection struct {
	docs    []map[string]any
	indexes []index
}

type object struct {
	data        []byte
	contentType string
	metadata    map[string]any
}

// Server is a fake oxidb-server.
type Server struct {
	ln net.Listener
	wg sync.WaitGroup

	mu      sync.Mutex
	nextID  float64
	colls   map[string]*collection
	buckets map[string]map[string]object
	fail    map[string]string
	delay   time.Duration
	conns   map[net.Conn]struct{}
	closed  bool
}

// New starts a server on a loopback port and stops it when t ends.
func New(t testing.TB) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("oxidbtest: listen: %v", err)
	}
	s := &Server{
		ln:      ln,
		colls:   map[string]*collection{},
		buckets: map[string]map[string]object{},
		fail:    map[string]string{},
		conns:   map[net.Conn]struct{}{},
	}
	s.wg.Add(1)
	go s.accept()
	t.Cleanup(s.Close)
	return s
}

// Addr is the "host:port" the server listens on.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// FailNext makes the next request for cmd return an error response.
func (s *Server) FailNext(cmd, msg string) {
	s.mu.Lock()
	s.fail[cmd] = msg
	s.mu.Unlock()
}

// SetDelay holds every response for d.
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

// Docs returns a copy of the documents stored in a collection.
func (s *Server) Docs(coll string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.colls[coll]
	if !ok {
		return nil
	}
	out := make([]map[string]any, len(c.docs))
	for i, d := range c.docs {
		out[i] = cloneDoc(d)
	}
	return out
}

// Close stops the listener and drops open connections.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.ln.Close()
	s.wg.Wait()
}

func (s *Server) accept() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()
		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()
	for {
		lenBuf := make([]byte, 4)
		if _, err := io.ReadFull(conn, lenBuf); err != nil {
			return
		}
		payload := make([]byte, binary.LittleEndian.Uint32(lenBuf))
		if _, err := io.ReadFull(conn, payload); err != nil {
			return
		}
		var req map[string]any
		resp := map[string]any{"ok": true}
		if err := json.Unmarshal(payload, &req); err != nil {
			resp = map[string]any{"ok": false, "error": "bad request: " + err.Error()}
		} else if data, err := s.handle(req); err != nil {
			resp = map[string]any{"ok": false, "error": err.Error()}
		} else {
			resp["data"] = data
		}

		s.mu.Lock()
		delay := s.delay
		s.mu.Unlock()
		if delay > 0 {
			time.Sleep(delay)
		}

		out, _ := json.Marshal(resp)
		frame := make([]byte, 4+len(out))
		binary.LittleEndian.PutUint32(frame, uint32(len(out)))
		copy(frame[4:], out)
		if _, err := conn.Write(frame); err != nil {
			return
		}
	}
}

func (s *Server) handle(req map[string]any) (any, error) {
	cmd, _ := req["cmd"].(string)
	name, _ := req["collection"].(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	if msg, ok := s.fail[cmd]; ok {
		delete(s.fail, cmd)
		return nil, errors.New(msg)
	}

	switch cmd {
	case "ping":
		return "pong", nil
	case "insert":
		doc, _ := req["doc"].(map[string]any)
		return s.insert(name, doc)
	case "find":
		return s.find(name, req), nil
	case "find_one":
		q, _ := req["query"].(map[string]any)
		for _, d := range s.coll(name).docs {
			if matches(d, q) {
				return cloneDoc(d), nil
			}
		}
		return nil, nil
	case "update_one":
		return s.updateOne(name, req)
	case "delete":
		q, _ := req["query"].(map[string]any)
		c := s.coll(name)
		kept := c.docs[:0]
		n := 0
		for _, d := range c.docs {
			if matches(d, q) {
				n++
				continue
			}
			kept = append(kept, d)
		}
		c.docs = kept
		return map[string]any{"deleted": n}, nil
	case "count":
		q, _ := req["query"].(map[string]any)
		n := 0
		for _, d := range s.coll(name).docs {
			if matches(d, q) {
				n++
			}
		}
		return map[string]any{"count": n}, nil
	case "create_index":
		f, _ := req["field"].(string)
		s.addIndex(name, index{Name: f, Fields: []string{f}})
		return "ok", nil
	case "create_unique_index":
		f, _ := req["field"].(string)
		s.addIndex(name, index{Name: f, Fields: []string{f}, Unique: true})
		return "ok", nil
	case "create_composite_index":
		fields := strList(req["fields"])
		s.addIndex(name, index{Name: strings.Join(fields, "_"), Fields: fields})
		return "ok", nil
	case "create_text_index":
		fields := strList(req["fields"])
		s.addIndex(name, index{Name: "text_" + strings.Join(fields, "_"), Fields: fields, Text: true})
		return "ok", nil
	case "list_indexes":
		out := []any{}
		for _, ix := range s.coll(name).indexes {
			out = append(out, map[string]any{"name": ix.Name, "fields": ix.Fields, "unique": ix.Unique, "text": ix.Text})
		}
		return out, nil
	case "text_search":
		return s.textSearch(name, req), nil
	case "compact":
		n := len(s.coll(name).docs)
		return map[string]any{"old_size": n * 100, "new_size": n * 100, "docs_kept": n}, nil
	case "create_bucket":
		b, _ := req["bucket"].(string)
		if _, ok := s.buckets[b]; ok {
			return nil, fmt.Errorf("bucket %q already exists", b)
		}
		s.buckets[b] = map[string]object{}
		return "ok", nil
	case "put_object":
		return s.putObject(req)
	case "get_object":
		b, _ := req["bucket"].(string)
		k, _ := req["key"].(string)
		obj, ok := s.buckets[b][k]
		if !ok {
			return nil, fmt.Errorf("object %s/%s not found", b, k)
		}
		return map[string]any{
			"content":      base64.StdEncoding.EncodeToString(obj.data),
			"content_type": obj.contentType,
			"metadata":     obj.metadata,
		}, nil
	case "delete_object":
		b, _ := req["bucket"].(string)
		k, _ := req["key"].(string)
		if _, ok := s.buckets[b][k]; !ok {
			return nil, fmt.Errorf("object %s/%s not found", b, k)
		}
		delete(s.buckets[b], k)
		return "ok", nil
	}
	return nil, fmt.Errorf("unknown command %q", cmd)
}

func (s *Server) coll(name string) *collection {
	c, ok := s.colls[name]
	if !ok {
		c = &collection{}
		s.colls[name] = c
	}
	return c
}

func (s *Server) addIndex(name string, ix index) {
	c := s.coll(name)
	for _, x := range c.indexes {
		if x.Name == ix.Name {
			return
		}
	}
	c.indexes = append(c.indexes, ix)
}

func (s *Server) violatesUnique(c *collection, doc map[string]any, skip map[string]any) error {
	for _, ix := range c.indexes {
		if !ix.Unique {
			continue
		}
		f := ix.Fields[0]
		v, ok := doc[f]
		if !ok {
			continue
		}
		for _, d := range c.docs {
			if skipDoc(d, skip) {
				continue
			}
			if equal(d[f], v) {
				return fmt.Errorf("unique constraint violation on %s", f)
			}
		}
	}
	return nil
}

func skipDoc(d, skip map[string]any) bool {
	return skip != nil && equal(d["_id"], skip["_id"])
}

func (s *Server) insert(name string, doc map[string]any) (any, error) {
	c := s.coll(name)
	if err := s.violatesUnique(c, doc, nil); err != nil {
		return nil, err
	}
	s.nextID++
	d := cloneDoc(doc)
	if d == nil {
		d = map[string]any{}
	}
	d["_id"] = s.nextID
	c.docs = append(c.docs, d)
	return map[string]any{"id": s.nextID}, nil
}

func (s *Server) find(name string, req map[string]any) any {
	q, _ := req["query"].(map[string]any)
	var out []map[string]any
	for _, d := range s.coll(name).docs {
		if matches(d, q) {
			out = append(out, cloneDoc(d))
		}
	}
	if sortSpec, ok := req["sort"].(map[string]any); ok {
		for field, dir := range sortSpec {
			desc := toNum(dir) < 0
			sort.SliceStable(out, func(i, j int) bool {
				if desc {
					return less(out[j][field], out[i][field])
				}
				return less(out[i][field], out[j][field])
			})
		}
	}
	if skip := int(toNum(req["skip"])); skip > 0 {
		if skip >= len(out) {
			out = nil
		} else {
			out = out[skip:]
		}
	}
	if limit := int(toNum(req["limit"])); limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	res := make([]any, len(out))
	for i, d := range out {
		res[i] = d
	}
	return res
}

func (s *Server) updateOne(name string, req map[string]any) (any, error) {
	q, _ := req["query"].(map[string]any)
	upd, _ := req["update"].(map[string]any)
	set, _ := upd["$set"].(map[string]any)
	c := s.coll(name)
	for i, d := range c.docs {
		if !matches(d, q) {
			continue
		}
		if err := s.violatesUnique(c, set, d); err != nil {
			return nil, err
		}
		next := cloneDoc(d)
		for k, v := range set {
			next[k] = v
		}
		c.docs[i] = next
		return map[string]any{"modified": 1}, nil
	}
	return map[string]any{"modified": 0}, nil
}

func (s *Server) textSearch(name string, req map[string]any) any {
	c := s.coll(name)
	var fields []string
	for _, ix := range c.indexes {
		if ix.Text {
			fields = append(fields, ix.Fields...)
		}
	}
	query, _ := req["query"].(string)
	terms := strings.Fields(strings.ToLower(query))
	limit := int(toNum(req["limit"]))
	out := []any{}
	for _, d := range c.docs {
		var text strings.Builder
		for _, f := range fields {
			fmt.Fprint(&text, d[f], " ")
		}
		hay := strings.ToLower(text.String())
		hit := len(terms) > 0
		for _, t := range terms {
			if !strings.Contains(hay, t) {
				hit = false
				break
			}
		}
		if hit {
			out = append(out, cloneDoc(d))
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out
}

func (s *Server) putObject(req map[string]any) (any, error) {
	b, _ := req["bucket"].(string)
	k, _ := req["key"].(string)
	bucket, ok := s.buckets[b]
	if !ok {
		return nil, fmt.Errorf("bucket %q not found", b)
	}
	enc, _ := req["data"].(string)
	data, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		return nil, fmt.Errorf("bad base64: %w", err)
	}
	ct, _ := req["content_type"].(string)
	meta, _ := req["metadata"].(map[string]any)
	bucket[k] = object{data: data, contentType: ct, metadata: meta}
	return map[string]any{"key": k, "size": len(data)}, nil
}

func matches(doc, q map[string]any) bool {
	for field, want := range q {
		got, present := doc[field]
		if ops, ok := want.(map[string]any); ok && isOperatorMap(ops) {
			for op, arg := range ops {
				if !applyOp(op, got, present, arg) {
					return false
				}
			}
			continue
		}
		if !present || !equal(got, want) {
			return false
		}
	}
	return true
}

func isOperatorMap(m map[string]any) bool {
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return false
		}
	}
	return len(m) > 0
}

func applyOp(op string, got any, present bool, arg any) bool {
	switch op {
	case "$eq":
		return present && equal(got, arg)
	case "$ne":
		return !present || !equal(got, arg)
	case "$in":
		list, _ := arg.([]any)
		for _, x := range list {
			if present && equal(got, x) {
				return true
			}
		}
		return false
	case "$gt":
		return present && less(arg, got)
	case "$gte":
		return present && !less(got, arg)
	case "$lt":
		return present && less(got, arg)
	case "$lte":
		return present && !less(arg, got)
	}
	return false
}

func equal(a, b any) bool {
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	return string(ja) == string(jb)
}

func less(a, b any) bool {
	if fa, ok := a.(float64); ok {
		if fb, ok := b.(float64); ok {
			return fa < fb
		}
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}

func toNum(v any) float64 {
	f, _ := v.(float64)
	return f
}

func strList(v any) []string {
	arr, _ := v.([]any)
	out := make([]string, 0, len(arr))
	for _, x := range arr {
		if s, ok := x.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func cloneDoc(d map[string]any) map[string]any {
	data, _ := json.Marshal(d)
	var out map[string]any
	json.Unmarshal(data, &out)
	return out
}
