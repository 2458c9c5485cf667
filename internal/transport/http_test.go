package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentName(t *testing.T) {
	assert.Equal(t, "logActivity", DocumentName(LogActivityMutation))
	assert.Equal(t, "createMission", DocumentName(CreateMissionMutation))
	assert.Equal(t, "bookVehicle", DocumentName(BookVehicleMutation))
	assert.Equal(t, "unknown", DocumentName("query whoAmI { me { id } }"))
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsRetryable(&NetworkError{Err: errors.New("refused")}))
	assert.True(t, IsRetryable(&TimeoutError{Err: context.DeadlineExceeded}))
	assert.True(t, IsRetryable(fmt.Errorf("wrapped: %w", &NetworkError{})))
	assert.False(t, IsRetryable(&RefreshTokenError{}))
	assert.False(t, IsRetryable(&MutationError{}))
	assert.False(t, IsRetryable(nil))

	assert.True(t, IsAuthenticationError(&RefreshTokenError{}))
	assert.True(t, IsAuthenticationError(&MutationError{
		Errors: []GraphQLError{{Code: CodeAuthentication}},
	}))
	assert.False(t, IsAuthenticationError(&NetworkError{}))
	assert.False(t, IsAuthenticationError(nil))

	me := &MutationError{Errors: []GraphQLError{
		{Message: "overlap", Code: CodeOverlappingActivities, Extensions: map[string]any{"k": "v"}},
	}}
	assert.True(t, MatchesCode(me, CodeOverlappingActivities))
	assert.False(t, MatchesCode(me, CodeOverlappingMissions))
	assert.False(t, MatchesCode(nil, CodeOverlappingActivities))

	ge, found := FindCode(me, CodeOverlappingActivities)
	require.True(t, found)
	assert.Equal(t, "v", ge.Extensions["k"])
	_, found = FindCode(me, CodeMissionAlreadyEnded)
	assert.False(t, found)
}

func TestClassifyTransportError(t *testing.T) {
	var te *TimeoutError
	assert.ErrorAs(t, classifyTransportError(context.DeadlineExceeded), &te)
	assert.ErrorAs(t, classifyTransportError(&url.Error{Err: context.DeadlineExceeded}), &te)

	var ne *NetworkError
	assert.ErrorAs(t, classifyTransportError(errors.New("connection refused")), &ne)
}

func TestResponse_Get(t *testing.T) {
	resp := &Response{Data: map[string]any{
		"activities": map[string]any{
			"logActivity": map[string]any{"id": float64(100)},
		},
	}}
	assert.Equal(t, float64(100), resp.Get("activities", "logActivity")["id"])
	assert.Nil(t, resp.Get("activities", "missing"))
	assert.Nil(t, (*Response)(nil).Get("activities"))
}

func TestMutate_SingleOperationPostsObject(t *testing.T) {
	var body json.RawMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		fmt.Fprint(w, `{"data":{"activities":{"logActivity":{"id":100}}}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	resp, err := c.Mutate(context.Background(), LogActivityMutation, map[string]any{"type": "drive"}, false)
	require.NoError(t, err)
	assert.Equal(t, float64(100), resp.Get("activities", "logActivity")["id"])

	var op operation
	require.NoError(t, json.Unmarshal(body, &op), "a lone mutation is framed as an object, not an array")
	assert.Equal(t, LogActivityMutation, op.Query)
	assert.Equal(t, "drive", op.Variables["type"])
}

func TestMutate_DecodesGraphQLErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":null,"errors":[
			{"message":"activity overlap","extensions":{"code":"OVERLAPPING_ACTIVITIES","conflictingActivity":{"id":9}}}
		]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Mutate(context.Background(), LogActivityMutation, nil, false)
	require.Error(t, err)
	assert.False(t, IsRetryable(err), "a mutation the server rejected must not be replayed")
	assert.True(t, MatchesCode(err, CodeOverlappingActivities))

	ge, found := FindCode(err, CodeOverlappingActivities)
	require.True(t, found)
	assert.Equal(t, "activity overlap", ge.Message)
	assert.NotNil(t, ge.Extensions["conflictingActivity"])
}

func TestMutate_UnauthorizedInvalidatesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var lost atomic.Bool
	c := NewClient(srv.URL, WithAuthLostHandler(func() { lost.Store(true) }))
	_, err := c.Mutate(context.Background(), LogActivityMutation, nil, false)
	assert.True(t, IsAuthenticationError(err))
	assert.True(t, lost.Load())
}

func TestMutate_ServerErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.Mutate(context.Background(), LogActivityMutation, nil, false)
	assert.True(t, IsRetryable(err))
}

func TestMutate_BatchableOperationsShareOneCall(t *testing.T) {
	var httpCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpCalls.Add(1)
		var ops []operation
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ops), "coalesced mutations use array framing")

		results := make([]wireResult, len(ops))
		for i, op := range ops {
			results[i] = wireResult{Data: map[string]any{
				"activities": map[string]any{
					"logActivity": map[string]any{"id": op.Variables["n"]},
				},
			}}
		}
		require.NoError(t, json.NewEncoder(w).Encode(results))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithBatchWindow(100*time.Millisecond))

	var wg sync.WaitGroup
	for i := 1; i <= 2; i++ {
		wg.Add(1)
		go func(n float64) {
			defer wg.Done()
			resp, err := c.Mutate(context.Background(), LogActivityMutation, map[string]any{"n": n}, true)
			require.NoError(t, err)
			assert.Equal(t, n, resp.Get("activities", "logActivity")["id"],
				"each caller receives the result matching its own operation")
		}(float64(i))
	}
	wg.Wait()

	assert.Equal(t, int32(1), httpCalls.Load())
}

func TestMutate_BatchErrorsStayPerOperation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var ops []operation
		require.NoError(t, json.NewDecoder(r.Body).Decode(&ops))
		results := make([]wireResult, len(ops))
		for i, op := range ops {
			if op.Variables["n"] == float64(1) {
				results[i] = wireResult{Errors: []wireError{{
					Message:    "overlap",
					Extensions: map[string]any{"code": CodeOverlappingActivities},
				}}}
				continue
			}
			results[i] = wireResult{Data: map[string]any{
				"activities": map[string]any{"logActivity": map[string]any{"id": op.Variables["n"]}},
			}}
		}
		require.NoError(t, json.NewEncoder(w).Encode(results))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, WithBatchWindow(100*time.Millisecond))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := c.Mutate(context.Background(), LogActivityMutation, map[string]any{"n": float64(1)}, true)
		assert.True(t, MatchesCode(err, CodeOverlappingActivities))
	}()
	go func() {
		defer wg.Done()
		resp, err := c.Mutate(context.Background(), LogActivityMutation, map[string]any{"n": float64(2)}, true)
		require.NoError(t, err)
		assert.Equal(t, float64(2), resp.Get("activities", "logActivity")["id"])
	}()
	wg.Wait()
}

func TestRefreshToken_RefreshesOnceBeforeExpiry(t *testing.T) {
	var refreshCalls, graphqlCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		refreshCalls.Add(1)
		future := time.Now().Add(time.Hour).Unix()
		http.SetCookie(w, &http.Cookie{Name: accessTokenCookie, Value: fmt.Sprint(future), Path: "/"})
	})
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		graphqlCalls.Add(1)
		fmt.Fprint(w, `{"data":{"activities":{"logActivity":{"id":100}}}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewClient(srv.URL)
	seedExpiry(t, c, srv.URL, time.Now().Unix())

	_, err := c.Mutate(context.Background(), LogActivityMutation, nil, false)
	require.NoError(t, err)
	_, err = c.Mutate(context.Background(), LogActivityMutation, nil, false)
	require.NoError(t, err)

	assert.Equal(t, int32(1), refreshCalls.Load(), "the refreshed cookie satisfies the second call")
	assert.Equal(t, int32(2), graphqlCalls.Load())
}

func TestRefreshToken_RejectionEndsSession(t *testing.T) {
	var graphqlCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/token/refresh", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})
	mux.HandleFunc("/graphql", func(w http.ResponseWriter, r *http.Request) {
		graphqlCalls.Add(1)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var lost atomic.Bool
	c := NewClient(srv.URL, WithAuthLostHandler(func() { lost.Store(true) }))
	seedExpiry(t, c, srv.URL, time.Now().Unix())

	_, err := c.Mutate(context.Background(), LogActivityMutation, nil, false)
	assert.True(t, IsAuthenticationError(err))
	assert.True(t, lost.Load())
	assert.Equal(t, int32(0), graphqlCalls.Load(), "the mutation never leaves the client")
}

// seedExpiry plants an access-token expiry cookie in the client's jar.
func seedExpiry(t *testing.T, c *Client, host string, unix int64) {
	t.Helper()
	base, err := url.Parse(host)
	require.NoError(t, err)
	c.http.Jar.SetCookies(base, []*http.Cookie{{Name: accessTokenCookie, Value: fmt.Sprint(unix)}})
}
