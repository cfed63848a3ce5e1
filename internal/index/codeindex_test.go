package index

import (
	"testing"

	"impactmap/internal/lang"
)

func method(qualified, file string, calls ...string) *lang.MethodInfo {
	var mc []lang.MethodCall
	for i, c := range calls {
		mc = append(mc, lang.MethodCall{Target: c, Line: 10 + i})
	}
	name := qualified
	if idx := lastIndex(qualified); idx >= 0 {
		name = qualified[idx+2:]
	}
	return &lang.MethodInfo{
		Name:          name,
		QualifiedName: qualified,
		FilePath:      file,
		LineRange:     lang.LineRange{Start: 1, End: 20},
		Calls:         mc,
	}
}

func lastIndex(s string) int {
	for i := len(s) - 2; i >= 0; i-- {
		if s[i] == ':' && s[i+1] == ':' {
			return i
		}
	}
	return -1
}

func TestForwardAndReverseCalls(t *testing.T) {
	ci := NewCodeIndex()
	ci.AddMethod(method("com.example.Foo::foo", "Foo.java", "com.example.Bar::bar"))

	callees := ci.FindCallees("com.example.Foo::foo")
	if len(callees) != 1 || callees[0] != "com.example.Bar::bar" {
		t.Errorf("unexpected callees: %v", callees)
	}

	callers := ci.FindCallers("com.example.Bar::bar")
	if len(callers) != 1 || callers[0] != "com.example.Foo::foo" {
		t.Errorf("unexpected callers: %v", callers)
	}
}

// P1: every forward pair has its reverse, modulo widening entries
func TestCallMapSymmetry(t *testing.T) {
	ci := NewCodeIndex()
	ci.AddMethod(method("a.A::x", "A.java", "a.B::y", "a.C::z"))
	ci.AddMethod(method("a.B::y", "B.java", "a.C::z"))
	ci.AddMethod(method("a.C::z", "C.java"))

	for _, caller := range ci.Methods() {
		for _, callee := range ci.FindCallees(caller) {
			found := false
			for _, back := range ci.FindCallers(callee) {
				if back == caller {
					found = true
				}
			}
			if !found {
				t.Errorf("reverse_calls[%s] missing %s", callee, caller)
			}
		}
	}
}

func TestMultipleCallers(t *testing.T) {
	ci := NewCodeIndex()
	ci.AddMethod(method("a.A::methodA", "A.java", "a.Common::shared"))
	ci.AddMethod(method("a.B::methodB", "B.java", "a.Common::shared"))

	callers := ci.FindCallers("a.Common::shared")
	if len(callers) != 2 {
		t.Fatalf("expected 2 callers, got %v", callers)
	}
	// FindCallers sorts for determinism
	if callers[0] != "a.A::methodA" || callers[1] != "a.B::methodB" {
		t.Errorf("callers not sorted: %v", callers)
	}
}

func TestDuplicateQualifiedNameWarning(t *testing.T) {
	ci := NewCodeIndex()
	ci.AddMethod(method("a.A::dup", "First.java"))
	ci.AddMethod(method("a.A::dup", "Second.java"))

	if len(ci.Warnings()) != 1 {
		t.Fatalf("expected 1 collision warning, got %v", ci.Warnings())
	}
	m, _ := ci.FindMethod("a.A::dup")
	if m.FilePath != "Second.java" {
		t.Errorf("last writer should win, got %s", m.FilePath)
	}
}

func TestResolveInterfaceCall(t *testing.T) {
	pf := &lang.ParsedFile{
		FilePath: "UserService.java",
		Language: "java",
		Classes: []lang.ClassInfo{
			{
				Name:        "com.example.UserService",
				IsInterface: true,
				Methods:     []lang.MethodInfo{*method("com.example.UserService::save", "UserService.java")},
			},
			{
				Name:       "com.example.UserServiceImpl",
				Implements: []string{"com.example.UserService"},
				Methods:    []lang.MethodInfo{*method("com.example.UserServiceImpl::save", "UserService.java")},
			},
		},
	}

	ci := NewCodeIndex()
	ci.Fold([]*lang.ParsedFile{pf})

	resolved := ci.ResolveInterfaceCall("com.example.UserService::save")
	if resolved != "com.example.UserServiceImpl::save" {
		t.Errorf("unique impl should resolve, got %s", resolved)
	}

	// idempotency law
	if ci.ResolveInterfaceCall(resolved) != resolved {
		t.Error("resolution is not idempotent")
	}

	// non-interface target passes through
	if ci.ResolveInterfaceCall("com.example.Other::m") != "com.example.Other::m" {
		t.Error("unknown target should pass through unchanged")
	}

	// bare names pass through
	if ci.ResolveInterfaceCall("println") != "println" {
		t.Error("bare target should pass through unchanged")
	}
}

func TestResolveInterfaceCallTwoImpls(t *testing.T) {
	pf := &lang.ParsedFile{
		FilePath: "S.java",
		Classes: []lang.ClassInfo{
			{Name: "a.S", IsInterface: true},
			{Name: "a.S1", Implements: []string{"a.S"}},
			{Name: "a.S2", Implements: []string{"a.S"}},
		},
	}

	ci := NewCodeIndex()
	ci.Fold([]*lang.ParsedFile{pf})

	if got := ci.ResolveInterfaceCall("a.S::m"); got != "a.S::m" {
		t.Errorf("ambiguous dispatch must stay on the interface, got %s", got)
	}
}

// P2: interface widening adds the resolved implementation to reverse_calls,
// independent of the order files are folded in.
func TestInterfaceWidening(t *testing.T) {
	caller := &lang.ParsedFile{
		FilePath: "Ctrl.java",
		Classes: []lang.ClassInfo{
			{
				Name: "com.example.Ctrl",
				Methods: []lang.MethodInfo{
					*method("com.example.Ctrl::create", "Ctrl.java", "com.example.UserService::save"),
				},
			},
		},
	}
	impl := &lang.ParsedFile{
		FilePath: "UserServiceImpl.java",
		Classes: []lang.ClassInfo{
			{
				Name:       "com.example.UserServiceImpl",
				Implements: []string{"com.example.UserService"},
				Methods:    []lang.MethodInfo{*method("com.example.UserServiceImpl::save", "UserServiceImpl.java")},
			},
		},
	}

	// caller folded before the implementation is known
	ci := NewCodeIndex()
	ci.Fold([]*lang.ParsedFile{caller, impl})

	callers := ci.FindCallers("com.example.UserServiceImpl::save")
	if len(callers) != 1 || callers[0] != "com.example.Ctrl::create" {
		t.Errorf("widening entry missing: %v", callers)
	}

	// the original interface-targeted entry survives too
	ifaceCallers := ci.FindCallers("com.example.UserService::save")
	if len(ifaceCallers) != 1 || ifaceCallers[0] != "com.example.Ctrl::create" {
		t.Errorf("interface reverse entry missing: %v", ifaceCallers)
	}
}

func TestHttpProviderAndConsumerIndexing(t *testing.T) {
	provider := method("com.example.Ctrl::get", "Ctrl.java")
	provider.Http = &lang.HttpAnnotation{Method: lang.HttpGet, Path: "svc-a/api/users/{id}"}

	consumer := method("com.example.Client::get", "Client.java")
	consumer.Http = &lang.HttpAnnotation{Method: lang.HttpGet, Path: "svc-a/api/users/{id}", FeignClient: true}

	ci := NewCodeIndex()
	ci.AddMethod(provider)
	ci.AddMethod(consumer)

	endpoint := lang.HttpEndpoint{Method: lang.HttpGet, PathPattern: "svc-a/api/users/{id}"}
	p, ok := ci.FindHttpProvider(endpoint)
	if !ok || p != "com.example.Ctrl::get" {
		t.Errorf("provider lookup failed: %s %v", p, ok)
	}
	consumers := ci.FindHttpConsumers(endpoint)
	if len(consumers) != 1 || consumers[0] != "com.example.Client::get" {
		t.Errorf("consumer lookup failed: %v", consumers)
	}
}

func TestHttpProviderCollisionWarning(t *testing.T) {
	a := method("a.A::h", "A.java")
	a.Http = &lang.HttpAnnotation{Method: lang.HttpGet, Path: "svc/x"}
	b := method("a.B::h", "B.java")
	b.Http = &lang.HttpAnnotation{Method: lang.HttpGet, Path: "svc/x"}

	ci := NewCodeIndex()
	ci.AddMethod(a)
	ci.AddMethod(b)

	if len(ci.Warnings()) != 1 {
		t.Errorf("expected provider collision warning, got %v", ci.Warnings())
	}
	p, _ := ci.FindHttpProvider(lang.HttpEndpoint{Method: lang.HttpGet, PathPattern: "svc/x"})
	if p != "a.B::h" {
		t.Errorf("last provider should win, got %s", p)
	}
}

func TestKafkaIndexing(t *testing.T) {
	producer := method("com.example.P::emit", "P.java")
	producer.KafkaOperations = []lang.KafkaOperation{{Kind: lang.KafkaProduce, Topic: "user-events", Line: 15}}
	consumer := method("com.example.C::handle", "C.java")
	consumer.KafkaOperations = []lang.KafkaOperation{{Kind: lang.KafkaConsume, Topic: "user-events", Line: 35}}

	ci := NewCodeIndex()
	ci.AddMethod(producer)
	ci.AddMethod(consumer)

	if got := ci.FindKafkaProducers("user-events"); len(got) != 1 || got[0] != "com.example.P::emit" {
		t.Errorf("producers: %v", got)
	}
	if got := ci.FindKafkaConsumers("user-events"); len(got) != 1 || got[0] != "com.example.C::handle" {
		t.Errorf("consumers: %v", got)
	}
	if got := ci.FindKafkaProducers("absent-topic"); got != nil {
		t.Errorf("absent topic should yield nothing: %v", got)
	}
}

func TestDbIndexing(t *testing.T) {
	reader := method("a.Dao::find", "Dao.java")
	reader.DbOperations = []lang.DbOperation{{Kind: lang.DbSelect, Table: "users"}}
	writer := method("a.Dao::save", "Dao.java")
	writer.DbOperations = []lang.DbOperation{{Kind: lang.DbInsert, Table: "users"}}

	ci := NewCodeIndex()
	ci.AddMethod(reader)
	ci.AddMethod(writer)

	if got := ci.FindDbReaders("users"); len(got) != 1 || got[0] != "a.Dao::find" {
		t.Errorf("readers: %v", got)
	}
	if got := ci.FindDbWriters("users"); len(got) != 1 || got[0] != "a.Dao::save" {
		t.Errorf("writers: %v", got)
	}
}

func TestRedisIndexingWithPrefixMatch(t *testing.T) {
	reader := method("a.Cache::get", "Cache.java")
	reader.RedisOperations = []lang.RedisOperation{{Kind: lang.RedisGet, KeyPattern: "user:123"}}
	writer := method("a.Cache::set", "Cache.java")
	writer.RedisOperations = []lang.RedisOperation{{Kind: lang.RedisSet, KeyPattern: "user:*"}}

	ci := NewCodeIndex()
	ci.AddMethod(reader)
	ci.AddMethod(writer)

	// the wildcard writer pattern matches the literal reader key
	if got := ci.FindRedisWriters("user:123"); len(got) != 1 || got[0] != "a.Cache::set" {
		t.Errorf("prefix-matched writers: %v", got)
	}
	if got := ci.FindRedisReaders("user:*"); len(got) != 1 || got[0] != "a.Cache::get" {
		t.Errorf("prefix-matched readers: %v", got)
	}
	if got := ci.FindRedisWriters("order:*"); got != nil {
		t.Errorf("unrelated prefix should not match: %v", got)
	}
}

func TestRedisPatternsMatch(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"user:123", "user:123", true},
		{"user:*", "user:123", true},
		{"user:123", "user:*", true},
		{"user:*", "user:*", true},
		{"user:*", "order:123", false},
		{"session:*", "user:123", false},
		{"user:123", "user:456", false},
	}

	for _, tt := range tests {
		if got := RedisPatternsMatch(tt.a, tt.b); got != tt.want {
			t.Errorf("RedisPatternsMatch(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestAssociateKafkaTopicConfig(t *testing.T) {
	producer := method("a.P::send", "P.java")
	producer.KafkaOperations = []lang.KafkaOperation{{Kind: lang.KafkaProduce, Topic: "user-events"}}
	consumer := method("a.C::handle", "C.java")
	consumer.KafkaOperations = []lang.KafkaOperation{{Kind: lang.KafkaConsume, Topic: "user-events"}}

	ci := NewCodeIndex()
	ci.AddMethod(producer)
	ci.AddMethod(consumer)

	ci.AssociateConfigData(&ConfigData{KafkaTopics: []string{"user-events"}})

	assoc := ci.FindConfigAssociations("kafka:topic:user-events")
	if len(assoc) != 2 {
		t.Fatalf("expected 2 associated methods, got %v", assoc)
	}
}

func TestAssociateHttpEndpointConfig(t *testing.T) {
	caller := method("a.Client::fetch", "Client.java", "RestTemplate.get(/api/users)")

	ci := NewCodeIndex()
	ci.AddMethod(caller)

	ci.AssociateConfigData(&ConfigData{HttpEndpoints: []lang.HttpEndpoint{
		{Method: lang.HttpGet, PathPattern: "/api/users/{id}"},
	}})

	assoc := ci.FindConfigAssociations("http:GET:/api/users/{id}")
	if len(assoc) != 1 || assoc[0] != "a.Client::fetch" {
		t.Errorf("http association missing: %v", assoc)
	}

	consumers := ci.FindHttpConsumers(lang.HttpEndpoint{Method: lang.HttpGet, PathPattern: "/api/users/{id}"})
	if len(consumers) != 1 {
		t.Errorf("associated caller should register as consumer: %v", consumers)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	ci := NewCodeIndex()
	m := method("a.A::x", "A.java", "a.B::y")
	m.Http = &lang.HttpAnnotation{Method: lang.HttpGet, Path: "svc/x"}
	ci.AddMethod(m)
	ci.AddMethod(method("a.B::y", "B.java"))

	restored := FromSnapshot(ci.Snapshot())

	if restored.MethodCount() != ci.MethodCount() {
		t.Errorf("method count differs after round trip")
	}
	if got := restored.FindCallers("a.B::y"); len(got) != 1 || got[0] != "a.A::x" {
		t.Errorf("reverse calls lost in round trip: %v", got)
	}
	if _, ok := restored.FindHttpProvider(lang.HttpEndpoint{Method: lang.HttpGet, PathPattern: "svc/x"}); !ok {
		t.Error("http provider lost in round trip")
	}
}
