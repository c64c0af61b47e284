package schema_test

import (
	"context"
	"testing"
	"time"

	"github.com/graphql-go/graphql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavor/meshql/internal/descriptor"
	"github.com/kavor/meshql/internal/grpcclient"
	"github.com/kavor/meshql/internal/grpctest"
	"github.com/kavor/meshql/internal/logging"
	"github.com/kavor/meshql/internal/schema"
)

// buildSchema generates the executable schema for the testdata protocol,
// bound to an in-process server.
func buildSchema(t *testing.T) graphql.Schema {
	t.Helper()

	logger := logging.NewNopLogger()
	addr := grpctest.Start(t)

	conn, err := grpcclient.Dial(grpcclient.DialConfig{Address: addr}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	loader := descriptor.NewLoader(logger)
	tree, _, err := loader.Load("hello.proto", descriptor.Options{
		IncludeDirs: []string{grpctest.ProtoDir()},
	})
	require.NoError(t, err)

	factory := grpcclient.NewFactory(conn, tree, logger)

	built, err := schema.Generate(context.Background(), tree, factory, schema.Options{
		PackageName: "com.acme",
		ServiceName: "Greeter",
	}, logger)
	require.NoError(t, err)
	return built
}

func TestGenerate_FieldRouting(t *testing.T) {
	s := buildSchema(t)

	queries := s.QueryType().Fields()
	assert.Contains(t, queries, "getStatus")
	assert.Contains(t, queries, "ping")
	assert.Contains(t, queries, "acmeV2_greeter2_ping")

	mutations := s.MutationType().Fields()
	assert.Contains(t, mutations, "sayHello")
	assert.Contains(t, mutations, "acmeV2_greeter2_sayHello")

	subscriptions := s.SubscriptionType().Fields()
	assert.Contains(t, subscriptions, "watch")

	// Lexical dispatch is exclusive: a method lands on exactly one root.
	assert.NotContains(t, queries, "sayHello")
	assert.NotContains(t, mutations, "getStatus")
	assert.NotContains(t, queries, "watch")
}

func TestGenerate_TypeMap(t *testing.T) {
	s := buildSchema(t)
	types := s.TypeMap()

	assert.Contains(t, types, "HelloReply")
	assert.Contains(t, types, "HelloRequestInput")
	assert.Contains(t, types, "Mood")
	assert.Contains(t, types, "Event")
	assert.Contains(t, types, "V2_Meta")
	assert.Contains(t, types, "V2_HelloReply")
	assert.Contains(t, types, "BigInt")
	assert.Contains(t, types, "ServerStatus")

	// Enums keep a single identity across input and output positions.
	assert.NotContains(t, types, "MoodInput")
}

func TestGenerate_UnaryMutation(t *testing.T) {
	s := buildSchema(t)

	result := graphql.Do(graphql.Params{
		Schema: s,
		RequestString: `mutation {
			sayHello(input: {name: "Ada", mood: EXCITED}) {
				message
				tags
				count
				mood
				meta { origin }
			}
		}`,
		Context: context.Background(),
	})
	require.Empty(t, result.Errors)

	data := result.Data.(map[string]interface{})
	reply := data["sayHello"].(map[string]interface{})
	assert.Equal(t, "Hello, Ada", reply["message"])
	assert.Equal(t, []interface{}{"casual", "test"}, reply["tags"])
	assert.Equal(t, "42", reply["count"]) // 64-bit integers surface as strings
	assert.Equal(t, "EXCITED", reply["mood"])
	assert.Equal(t, map[string]interface{}{"origin": "v2"}, reply["meta"])
}

func TestGenerate_UnaryQuery(t *testing.T) {
	s := buildSchema(t)

	result := graphql.Do(graphql.Params{
		Schema:        s,
		RequestString: `{ getStatus { state healthy } }`,
		Context:       context.Background(),
	})
	require.Empty(t, result.Errors)

	data := result.Data.(map[string]interface{})
	status := data["getStatus"].(map[string]interface{})
	assert.Equal(t, "ok", status["state"])
	assert.Equal(t, true, status["healthy"])
}

func TestGenerate_NestedNamespaceField(t *testing.T) {
	s := buildSchema(t)

	result := graphql.Do(graphql.Params{
		Schema:        s,
		RequestString: `mutation { acmeV2_greeter2_sayHello(input: {name: "Bo"}) { message } }`,
		Context:       context.Background(),
	})
	require.Empty(t, result.Errors)

	data := result.Data.(map[string]interface{})
	reply := data["acmeV2_greeter2_sayHello"].(map[string]interface{})
	assert.Equal(t, "v2: Bo", reply["message"])
}

func TestGenerate_UnaryRemoteError(t *testing.T) {
	s := buildSchema(t)

	result := graphql.Do(graphql.Params{
		Schema:        s,
		RequestString: `mutation { sayHello(input: {name: "fail"}) { message } }`,
		Context:       context.Background(),
	})
	require.NotEmpty(t, result.Errors)
	assert.Contains(t, result.Errors[0].Message, "name rejected")
}

func TestGenerate_Ping(t *testing.T) {
	s := buildSchema(t)

	result := graphql.Do(graphql.Params{
		Schema:        s,
		RequestString: `{ ping { status } acmeV2_greeter2_ping { status } }`,
		Context:       context.Background(),
	})
	require.Empty(t, result.Errors)

	data := result.Data.(map[string]interface{})
	assert.Equal(t, map[string]interface{}{"status": "online"}, data["ping"])
	assert.Equal(t, map[string]interface{}{"status": "online"}, data["acmeV2_greeter2_ping"])
}

func TestGenerate_Subscription(t *testing.T) {
	s := buildSchema(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results := graphql.Subscribe(graphql.Params{
		Schema:        s,
		RequestString: `subscription { watch(input: {topic: "news"}) { id payload seq } }`,
		Context:       ctx,
	})

	var events []map[string]interface{}
	for r := range results {
		require.Empty(t, r.Errors)
		data := r.Data.(map[string]interface{})
		events = append(events, data["watch"].(map[string]interface{}))
	}

	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, i+1, ev["seq"]) // arrival order is preserved
	}
	assert.Equal(t, "e1", events[0]["id"])
	assert.Equal(t, "news", events[0]["payload"])
}

func TestGenerate_SubscriptionStreamError(t *testing.T) {
	s := buildSchema(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	results := graphql.Subscribe(graphql.Params{
		Schema:        s,
		RequestString: `subscription { watch(input: {topic: "boom"}) { id } }`,
		Context:       ctx,
	})

	var ok, failed int
	for r := range results {
		if len(r.Errors) > 0 {
			failed++
			assert.Contains(t, r.Errors[0].Message, "stream blew up")
		} else {
			ok++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)
}

func TestGenerate_SubscriptionCancel(t *testing.T) {
	s := buildSchema(t)

	ctx, cancel := context.WithCancel(context.Background())
	results := graphql.Subscribe(graphql.Params{
		Schema:        s,
		RequestString: `subscription { watch(input: {topic: "slow"}) { seq } }`,
		Context:       ctx,
	})

	// Take a couple of events, then walk away.
	for i := 0; i < 2; i++ {
		select {
		case r, open := <-results:
			require.True(t, open)
			require.Empty(t, r.Errors)
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for stream event")
		}
	}
	cancel()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case _, open := <-results:
			if !open {
				return // cancellation closed the event sequence
			}
		case <-deadline:
			t.Fatal("result channel did not close after cancellation")
		}
	}
}
