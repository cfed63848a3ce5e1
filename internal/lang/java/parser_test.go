package java

import (
	"os"
	"path/filepath"
	"testing"

	"impactmap/internal/lang"
)

func parseSource(t *testing.T, name, source string) *lang.ParsedFile {
	t.Helper()
	p := NewParser()
	parsed, err := p.ParseFile([]byte(source), name)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}
	return parsed
}

func TestParseSimpleClass(t *testing.T) {
	parsed := parseSource(t, "Example.java", `
		public class Example {
			public void hello() {
				System.out.println("Hello");
			}
		}
	`)

	if len(parsed.Classes) != 1 {
		t.Fatalf("expected 1 class, got %d", len(parsed.Classes))
	}
	if parsed.Classes[0].Name != "Example" {
		t.Errorf("expected class Example, got %s", parsed.Classes[0].Name)
	}
	if len(parsed.Classes[0].Methods) != 1 || parsed.Classes[0].Methods[0].Name != "hello" {
		t.Errorf("expected single method hello, got %+v", parsed.Classes[0].Methods)
	}
}

func TestParseInterface(t *testing.T) {
	parsed := parseSource(t, "ShopService.java", `
		package com.example;

		public interface ShopService {
			Response query(GetShopCmd cmd);
			Response clone(ShopCloneCmd cmd);
			Response restore(ShopRestoreCmd cmd);
		}
	`)

	if len(parsed.Classes) != 1 {
		t.Fatalf("expected 1 class, got %d", len(parsed.Classes))
	}
	cls := parsed.Classes[0]
	if cls.Name != "com.example.ShopService" {
		t.Errorf("expected qualified interface name, got %s", cls.Name)
	}
	if !cls.IsInterface {
		t.Error("interface flag not set")
	}
	if len(cls.Methods) != 3 {
		t.Fatalf("expected 3 abstract methods, got %d", len(cls.Methods))
	}
	for i, want := range []string{"query", "clone", "restore"} {
		if cls.Methods[i].Name != want {
			t.Errorf("method %d: expected %s, got %s", i, want, cls.Methods[i].Name)
		}
	}
}

func TestImplementsResolution(t *testing.T) {
	parsed := parseSource(t, "UserService.java", `
		package com.example;

		public interface UserService {
			void saveUser(String name);
		}

		public class UserServiceImpl implements UserService {
			public void saveUser(String name) {
			}
		}
	`)

	if len(parsed.Classes) != 2 {
		t.Fatalf("expected 2 classes, got %d", len(parsed.Classes))
	}
	impl := parsed.Classes[1]
	if impl.Name != "com.example.UserServiceImpl" {
		t.Fatalf("unexpected impl class name %s", impl.Name)
	}
	if len(impl.Implements) != 1 || impl.Implements[0] != "com.example.UserService" {
		t.Errorf("implements not qualified to same package: %+v", impl.Implements)
	}
}

func TestImplementsViaImport(t *testing.T) {
	parsed := parseSource(t, "OrderServiceImpl.java", `
		package com.example.impl;

		import com.example.api.OrderService;

		public class OrderServiceImpl implements OrderService {
			public void place() {}
		}
	`)

	impl := parsed.Classes[0]
	if len(impl.Implements) != 1 || impl.Implements[0] != "com.example.api.OrderService" {
		t.Errorf("implements should resolve through the import map: %+v", impl.Implements)
	}
}

func TestFieldReceiverCallResolution(t *testing.T) {
	parsed := parseSource(t, "TestController.java", `
		package com.example;

		import com.acme.shop.EquipmentManager;

		public class TestController {
			private EquipmentManager equipmentManager;

			public void testMethod() {
				equipmentManager.listSchedule("");
			}
		}
	`)

	method := parsed.Classes[0].Methods[0]
	if len(method.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(method.Calls))
	}
	want := "com.acme.shop.EquipmentManager::listSchedule"
	if method.Calls[0].Target != want {
		t.Errorf("expected %s, got %s", want, method.Calls[0].Target)
	}
}

func TestLocalVariableCallResolution(t *testing.T) {
	parsed := parseSource(t, "TestLocal.java", `
		package com.example;

		public class TestLocal {
			public void go() {
				Foo foo = new Foo();
				foo.bar();
			}
		}

		class Foo {
			public void bar() {}
		}
	`)

	goMethod := parsed.Classes[0].Methods[0]
	if len(goMethod.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(goMethod.Calls))
	}
	if goMethod.Calls[0].Target != "com.example.Foo::bar" {
		t.Errorf("local variable receiver should resolve in-package: %s", goMethod.Calls[0].Target)
	}
}

func TestStaticCallThroughImport(t *testing.T) {
	parsed := parseSource(t, "UsesUtil.java", `
		package com.example;

		import com.acme.util.StringUtil;

		public class UsesUtil {
			public void run() {
				StringUtil.trimAll("x");
			}
		}
	`)

	method := parsed.Classes[0].Methods[0]
	if len(method.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(method.Calls))
	}
	if method.Calls[0].Target != "com.acme.util.StringUtil::trimAll" {
		t.Errorf("static call should resolve through imports: %s", method.Calls[0].Target)
	}
}

// Method parameters are deliberately not carried into the environment;
// calls on them stay bare and are filtered as external downstream.
func TestParameterReceiverStaysUnresolved(t *testing.T) {
	parsed := parseSource(t, "ParamCall.java", `
		package com.example;

		import com.example.api.Collaborator;

		public class ParamCall {
			public void run(Collaborator c) {
				c.help();
			}
		}
	`)

	method := parsed.Classes[0].Methods[0]
	if len(method.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(method.Calls))
	}
	if method.Calls[0].Target != "help" {
		t.Errorf("parameter receiver should stay unresolved, got %s", method.Calls[0].Target)
	}
}

func TestChainedCallDecomposition(t *testing.T) {
	parsed := parseSource(t, "Chained.java", `
		package com.example;

		public class Chained {
			private Registry registry;

			public void run() {
				registry.lookup().invoke();
			}
		}

		class Registry {
			public Target lookup() { return null; }
		}
	`)

	method := parsed.Classes[0].Methods[0]
	if len(method.Calls) != 2 {
		t.Fatalf("expected 2 decomposed calls, got %d: %+v", len(method.Calls), method.Calls)
	}
	targets := map[string]bool{}
	for _, c := range method.Calls {
		targets[c.Target] = true
	}
	if !targets["com.example.Registry::lookup"] {
		t.Errorf("inner link should resolve through the field env: %+v", method.Calls)
	}
	if !targets["invoke"] {
		t.Errorf("outer link of a chain should fall back to the bare name: %+v", method.Calls)
	}
}

func TestProviderHttpAnnotation(t *testing.T) {
	parsed := parseSource(t, "UserController.java", `
		@RestController
		@RequestMapping("/users")
		public class UserController {
			@GetMapping("/{id}")
			public User getUser() {
				return null;
			}
		}
	`)

	method := parsed.Classes[0].Methods[0]
	if method.Http == nil {
		t.Fatal("HTTP annotation should be present")
	}
	if method.Http.Method != lang.HttpGet {
		t.Errorf("expected GET, got %s", method.Http.Method)
	}
	if method.Http.FeignClient {
		t.Error("provider must not carry the feign flag")
	}
	if method.Http.Path != "users/{id}" {
		t.Errorf("expected class+method path users/{id}, got %s", method.Http.Path)
	}
	if len(method.Http.PathParams) != 1 || method.Http.PathParams[0] != "id" {
		t.Errorf("expected path param id, got %+v", method.Http.PathParams)
	}
}

func TestProviderPathWithApplicationConfig(t *testing.T) {
	dir := t.TempDir()
	resources := filepath.Join(dir, "svc-a", "src", "main", "resources")
	if err := os.MkdirAll(resources, 0755); err != nil {
		t.Fatal(err)
	}
	yml := "spring:\n  application:\n    name: svc-a\nserver:\n  servlet:\n    context-path: /api\n"
	if err := os.WriteFile(filepath.Join(resources, "application.yml"), []byte(yml), 0644); err != nil {
		t.Fatal(err)
	}

	srcDir := filepath.Join(dir, "svc-a", "src", "main", "java")
	if err := os.MkdirAll(srcDir, 0755); err != nil {
		t.Fatal(err)
	}
	source := `
		@RestController
		public class Ctrl {
			@GetMapping("/users/{id}")
			public User get() { return null; }
		}
	`
	srcPath := filepath.Join(srcDir, "Ctrl.java")
	if err := os.WriteFile(srcPath, []byte(source), 0644); err != nil {
		t.Fatal(err)
	}

	p := NewParser()
	parsed, err := p.ParseFile([]byte(source), srcPath)
	if err != nil {
		t.Fatalf("ParseFile failed: %v", err)
	}

	method := parsed.Classes[0].Methods[0]
	if method.Http == nil {
		t.Fatal("HTTP annotation should be present")
	}
	if method.Http.Path != "svc-a/api/users/{id}" {
		t.Errorf("expected svc-a/api/users/{id}, got %s", method.Http.Path)
	}
}

func TestFeignClientAnnotation(t *testing.T) {
	parsed := parseSource(t, "Client.java", `
		package com.example;

		@FeignClient(value = "svc-a", path = "/api")
		public interface Client {
			@GetMapping("/users/{id}")
			User get(Long id);
		}
	`)

	method := parsed.Classes[0].Methods[0]
	if method.Http == nil {
		t.Fatal("Feign HTTP annotation should be present")
	}
	if !method.Http.FeignClient {
		t.Error("feign flag should be set")
	}
	if method.Http.Path != "svc-a/api/users/{id}" {
		t.Errorf("expected svc-a/api/users/{id}, got %s", method.Http.Path)
	}
}

func TestRequestMappingWithMethodAttr(t *testing.T) {
	parsed := parseSource(t, "Ctrl.java", `
		public class Ctrl {
			@RequestMapping(value = "/orders", method = RequestMethod.POST)
			public void create() {}
		}
	`)

	method := parsed.Classes[0].Methods[0]
	if method.Http == nil {
		t.Fatal("HTTP annotation should be present")
	}
	if method.Http.Method != lang.HttpPost {
		t.Errorf("expected POST from RequestMethod attribute, got %s", method.Http.Method)
	}
}

func TestKafkaOperations(t *testing.T) {
	parsed := parseSource(t, "MessageService.java", `
		public class MessageService {
			@KafkaListener(topics = "user-events")
			public void handleMessage(String message) {
			}

			public void sendMessage() {
				kafkaTemplate.send("order-events", "data");
			}
		}
	`)

	consumer := parsed.Classes[0].Methods[0]
	if len(consumer.KafkaOperations) != 1 {
		t.Fatalf("expected 1 consume op, got %d", len(consumer.KafkaOperations))
	}
	if consumer.KafkaOperations[0].Kind != lang.KafkaConsume || consumer.KafkaOperations[0].Topic != "user-events" {
		t.Errorf("unexpected consume op: %+v", consumer.KafkaOperations[0])
	}

	producer := parsed.Classes[0].Methods[1]
	if len(producer.KafkaOperations) != 1 {
		t.Fatalf("expected 1 produce op, got %d", len(producer.KafkaOperations))
	}
	if producer.KafkaOperations[0].Kind != lang.KafkaProduce || producer.KafkaOperations[0].Topic != "order-events" {
		t.Errorf("unexpected produce op: %+v", producer.KafkaOperations[0])
	}
}

func TestDbOperations(t *testing.T) {
	parsed := parseSource(t, "UserRepository.java", `
		public class UserRepository {
			public void saveUser() {
				String sql = "INSERT INTO users (name) VALUES ('John')";
			}

			public void findUser() {
				String sql = "SELECT * FROM users WHERE id = 1";
			}

			public void updateUser() {
				String sql = "UPDATE users SET name = 'Jane'";
			}

			public void deleteUser() {
				String sql = "DELETE FROM users WHERE id = 1";
			}
		}
	`)

	kinds := []lang.DbOpKind{lang.DbInsert, lang.DbSelect, lang.DbUpdate, lang.DbDelete}
	for i, kind := range kinds {
		method := parsed.Classes[0].Methods[i]
		if len(method.DbOperations) != 1 {
			t.Fatalf("method %s: expected 1 db op, got %d", method.Name, len(method.DbOperations))
		}
		op := method.DbOperations[0]
		if op.Kind != kind || op.Table != "users" {
			t.Errorf("method %s: unexpected op %+v", method.Name, op)
		}
	}
}

func TestRedisOperations(t *testing.T) {
	parsed := parseSource(t, "CacheService.java", `
		public class CacheService {
			public void getFromCache() {
				String value = redisTemplate.opsForValue().get("user:123");
			}

			public void setToCache() {
				redisTemplate.opsForValue().set("user:456", "data");
			}

			public void deleteFromCache() {
				redisTemplate.delete("user:789");
			}
		}
	`)

	expected := []struct {
		kind lang.RedisOpKind
		key  string
	}{
		{lang.RedisGet, "user:123"},
		{lang.RedisSet, "user:456"},
		{lang.RedisDelete, "user:789"},
	}

	for i, want := range expected {
		method := parsed.Classes[0].Methods[i]
		if len(method.RedisOperations) != 1 {
			t.Fatalf("method %s: expected 1 redis op, got %d", method.Name, len(method.RedisOperations))
		}
		op := method.RedisOperations[0]
		if op.Kind != want.kind || op.KeyPattern != want.key {
			t.Errorf("method %s: unexpected op %+v", method.Name, op)
		}
	}
}

func TestSyntaxErrorDoesNotPanic(t *testing.T) {
	parsed := parseSource(t, "Broken.java", `
		package com.example;

		public class Broken {
			public void ok() {}
			public void broken( {
		}
	`)

	// partial parse: the well-formed method must still be extracted
	if len(parsed.Classes) == 0 {
		t.Fatal("partial parse should still yield the class")
	}
	found := false
	for _, m := range parsed.Classes[0].Methods {
		if m.Name == "ok" {
			found = true
		}
	}
	if !found {
		t.Error("well-formed method missing from partial parse")
	}
}

func TestJoinPath(t *testing.T) {
	tests := []struct {
		segments []string
		want     string
	}{
		{[]string{"svc-a", "/api", "/users/{id}"}, "svc-a/api/users/{id}"},
		{[]string{"", "", "/users"}, "users"},
		{[]string{"svc-a", "", "users/"}, "svc-a/users"},
		{[]string{}, ""},
	}

	for _, tt := range tests {
		if got := JoinPath(tt.segments...); got != tt.want {
			t.Errorf("JoinPath(%v) = %q, want %q", tt.segments, got, tt.want)
		}
	}
}
