// Package store is the reference in-memory key-value store behind the
// scripting engine's command gateway. It implements command.Table and
// command.Executor with a small but realistic command set whose descriptors
// carry the flags the gateway enforces (write, random, sort-for-script,
// noscript).
//
// It exists so the engine, the CLI and the tests have a real command
// collaborator; a production deployment swaps in the server's own dispatch
// table.
package store

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/lodisdb/lodis/command"
	"github.com/lodisdb/lodis/resp"
)

// DatabaseCount is the number of selectable logical databases.
const DatabaseCount = 16

type handler func(s *Store, sess *command.Session, args []string) []byte

type cmd struct {
	desc    command.Descriptor
	handler handler
}

// Store is a flag-annotated command table over per-database key spaces.
// All commands run under one lock; key-level isolation across scripts is the
// keylock manager's job, not the store's.
type Store struct {
	mu  sync.RWMutex
	dbs [DatabaseCount]map[string]entry

	cmds map[string]*cmd
	rng  *rand.Rand
	now  func() time.Time
}

// entry is a typed value slot. Exactly one field is populated.
type entry struct {
	str string
	set map[string]struct{}
	// isSet distinguishes an empty set from a string entry.
	isSet bool
}

// New creates an empty store with the built-in command table.
func New() *Store {
	s := &Store{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		now: time.Now,
	}
	for i := range s.dbs {
		s.dbs[i] = make(map[string]entry)
	}
	s.cmds = commandTable()
	return s
}

// Precheck implements command.Table.
func (s *Store) Precheck(args []string) (*command.Descriptor, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("ERR empty command")
	}
	c, ok := s.cmds[strings.ToLower(args[0])]
	if !ok {
		return nil, fmt.Errorf("ERR unknown command '%s'", args[0])
	}
	if !c.desc.AcceptsArity(len(args)) {
		return nil, fmt.Errorf("ERR wrong number of arguments for '%s' command", c.desc.Name)
	}
	return &c.desc, nil
}

// Exec implements command.Executor. Command-level failures come back inside
// the reply as a '-' error reply; the error return is reserved for dispatch
// failures.
func (s *Store) Exec(sess *command.Session, args []string) ([]byte, error) {
	c, ok := s.cmds[strings.ToLower(args[0])]
	if !ok {
		return nil, fmt.Errorf("ERR unknown command '%s'", args[0])
	}
	return c.handler(s, sess, args), nil
}

// Descriptor exposes a command's metadata for introspection.
func (s *Store) Descriptor(name string) (*command.Descriptor, bool) {
	c, ok := s.cmds[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return &c.desc, true
}

func (s *Store) db(sess *command.Session) map[string]entry {
	if sess == nil || sess.DB < 0 || sess.DB >= DatabaseCount {
		return s.dbs[0]
	}
	return s.dbs[sess.DB]
}

func commandTable() map[string]*cmd {
	table := map[string]*cmd{}
	add := func(name string, arity int, flags command.Flags, h handler) {
		table[name] = &cmd{
			desc:    command.Descriptor{Name: name, Arity: arity, Flags: flags},
			handler: h,
		}
	}

	add("ping", 1, command.FlagReadOnly, cmdPing)
	add("echo", 2, command.FlagReadOnly, cmdEcho)
	add("auth", 2, command.FlagNoScript, cmdAuth)
	add("select", 2, command.FlagReadOnly, cmdSelect)

	add("get", 2, command.FlagReadOnly, cmdGet)
	add("set", 3, command.FlagWrite, cmdSet)
	add("del", -2, command.FlagWrite, cmdDel)
	add("exists", -2, command.FlagReadOnly, cmdExists)
	add("incr", 2, command.FlagWrite, cmdIncr)
	add("keys", 2, command.FlagReadOnly|command.FlagSortForScript, cmdKeys)
	add("randomkey", 1, command.FlagReadOnly|command.FlagRandom, cmdRandomKey)

	add("sadd", -3, command.FlagWrite, cmdSAdd)
	add("srem", -3, command.FlagWrite, cmdSRem)
	add("scard", 2, command.FlagReadOnly, cmdSCard)
	add("smembers", 2, command.FlagReadOnly|command.FlagSortForScript, cmdSMembers)
	add("spop", 2, command.FlagWrite|command.FlagRandom, cmdSPop)
	add("srandmember", 2, command.FlagReadOnly|command.FlagRandom, cmdSRandMember)

	add("time", 1, command.FlagReadOnly|command.FlagRandom, cmdTime)

	return table
}

var wrongTypeReply = resp.Error("WRONGTYPE Operation against a key holding the wrong kind of value")

func cmdPing(s *Store, sess *command.Session, args []string) []byte {
	return resp.Status("PONG")
}

func cmdEcho(s *Store, sess *command.Session, args []string) []byte {
	return resp.Bulk(args[1])
}

func cmdAuth(s *Store, sess *command.Session, args []string) []byte {
	sess.Authenticated = true
	return resp.Status("OK")
}

func cmdSelect(s *Store, sess *command.Session, args []string) []byte {
	n, err := strconv.Atoi(args[1])
	if err != nil || n < 0 || n >= DatabaseCount {
		return resp.Error("ERR DB index is out of range")
	}
	sess.DB = n
	return resp.Status("OK")
}

func cmdGet(s *Store, sess *command.Session, args []string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.db(sess)[args[1]]
	if !ok {
		return resp.Nil()
	}
	if e.isSet {
		return wrongTypeReply
	}
	return resp.Bulk(e.str)
}

func cmdSet(s *Store, sess *command.Session, args []string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db(sess)[args[1]] = entry{str: args[2]}
	return resp.Status("OK")
}

func cmdDel(s *Store, sess *command.Session, args []string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	db := s.db(sess)
	removed := int64(0)
	for _, key := range args[1:] {
		if _, ok := db[key]; ok {
			delete(db, key)
			removed++
		}
	}
	return resp.Integer(removed)
}

func cmdExists(s *Store, sess *command.Session, args []string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db := s.db(sess)
	found := int64(0)
	for _, key := range args[1:] {
		if _, ok := db[key]; ok {
			found++
		}
	}
	return resp.Integer(found)
}

func cmdIncr(s *Store, sess *command.Session, args []string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	db := s.db(sess)
	e, ok := db[args[1]]
	if ok && e.isSet {
		return wrongTypeReply
	}
	var v int64
	if ok {
		parsed, err := strconv.ParseInt(e.str, 10, 64)
		if err != nil {
			return resp.Error("ERR value is not an integer or out of range")
		}
		v = parsed
	}
	v++
	db[args[1]] = entry{str: strconv.FormatInt(v, 10)}
	return resp.Integer(v)
}

func cmdKeys(s *Store, sess *command.Session, args []string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var elems [][]byte
	for key := range s.db(sess) {
		if globMatch(args[1], key) {
			elems = append(elems, resp.Bulk(key))
		}
	}
	return resp.Array(elems...)
}

func cmdRandomKey(s *Store, sess *command.Session, args []string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key := range s.db(sess) {
		return resp.Bulk(key)
	}
	return resp.Nil()
}

func cmdSAdd(s *Store, sess *command.Session, args []string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	db := s.db(sess)
	e, ok := db[args[1]]
	if ok && !e.isSet {
		return wrongTypeReply
	}
	if !ok {
		e = entry{set: make(map[string]struct{}), isSet: true}
	}
	added := int64(0)
	for _, member := range args[2:] {
		if _, exists := e.set[member]; !exists {
			e.set[member] = struct{}{}
			added++
		}
	}
	db[args[1]] = e
	return resp.Integer(added)
}

func cmdSRem(s *Store, sess *command.Session, args []string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	db := s.db(sess)
	e, ok := db[args[1]]
	if !ok {
		return resp.Integer(0)
	}
	if !e.isSet {
		return wrongTypeReply
	}
	removed := int64(0)
	for _, member := range args[2:] {
		if _, exists := e.set[member]; exists {
			delete(e.set, member)
			removed++
		}
	}
	if len(e.set) == 0 {
		delete(db, args[1])
	}
	return resp.Integer(removed)
}

func cmdSCard(s *Store, sess *command.Session, args []string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.db(sess)[args[1]]
	if !ok {
		return resp.Integer(0)
	}
	if !e.isSet {
		return wrongTypeReply
	}
	return resp.Integer(int64(len(e.set)))
}

func cmdSMembers(s *Store, sess *command.Session, args []string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.db(sess)[args[1]]
	if !ok {
		return resp.Array()
	}
	if !e.isSet {
		return wrongTypeReply
	}
	var elems [][]byte
	for member := range e.set {
		elems = append(elems, resp.Bulk(member))
	}
	return resp.Array(elems...)
}

func cmdSPop(s *Store, sess *command.Session, args []string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	db := s.db(sess)
	e, ok := db[args[1]]
	if !ok {
		return resp.Nil()
	}
	if !e.isSet {
		return wrongTypeReply
	}
	for member := range e.set {
		delete(e.set, member)
		if len(e.set) == 0 {
			delete(db, args[1])
		}
		return resp.Bulk(member)
	}
	return resp.Nil()
}

func cmdSRandMember(s *Store, sess *command.Session, args []string) []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.db(sess)[args[1]]
	if !ok {
		return resp.Nil()
	}
	if !e.isSet {
		return wrongTypeReply
	}
	for member := range e.set {
		return resp.Bulk(member)
	}
	return resp.Nil()
}

func cmdTime(s *Store, sess *command.Session, args []string) []byte {
	now := s.now()
	return resp.Array(
		resp.Bulk(strconv.FormatInt(now.Unix(), 10)),
		resp.Bulk(strconv.FormatInt(int64(now.Nanosecond()/1000), 10)),
	)
}

// globMatch supports the *, ? and literal forms of the KEYS pattern syntax.
func globMatch(pattern, s string) bool {
	if pattern == "*" {
		return true
	}
	return matchHere(pattern, s)
}

func matchHere(pattern, s string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for i := 0; i <= len(s); i++ {
				if matchHere(pattern[1:], s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
		default:
			if len(s) == 0 || pattern[0] != s[0] {
				return false
			}
		}
		pattern = pattern[1:]
		s = s[1:]
	}
	return len(s) == 0
}
