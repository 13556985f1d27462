/*
Package server hosts the two TLS listeners and translates between HTTP and
actions.

The listeners are the only boundary between the network and the
dispatcher. Everything that arrives is reduced to a types.Action; every
reply is the resolved action written back onto the connection that carried
the request.

# Architecture

Both listeners share one router shape, one dispatcher and one reply hub:

	       public :8080                      private :8443
	┌──────────────────────────┐    ┌──────────────────────────┐
	│ TLS: client cert         │    │ TLS: client cert         │
	│      optional            │    │      required (mTLS)     │
	└───────────┬──────────────┘    └───────────┬──────────────┘
	            │                               │
	            ▼                               ▼
	┌─────────────────────────────────────────────────────────┐
	│  POST /action/{name}                                    │
	│  1. per-peer rate limit            => 429 when exceeded │
	│  2. authenticate executor          => 401 on bad token  │
	│  3. parse headers + body => Action => 400 on bad ids    │
	│  4. hub.register(action.ID)                             │
	│  5. dispatcher.ResolveAction(action, from)              │
	│  6. park on the reply channel                           │
	└───────────────────────────┬─────────────────────────────┘
	                            │ hub.Deliver(reply)
	                            ▼
	              200 + X-Cloud-Error + payload body

The hub is the route back to the originating listener: whichever handler
goroutine registered the action id is the one parked on its channel, so
replies cannot cross between endpoints and out-of-order completion of
asynchronous actions is harmless.

# Wire Encoding

One action is one POST to /action/{name}. Request headers:

	X-Cloud-Action-Id      optional uuid; generated when absent
	X-Cloud-Resource-Name  optional resource name
	X-Cloud-Resource-Id    optional uuid
	X-Cloud-Executor       claimed executor, only honored with a token
	Authorization          "Bearer <content>" for one-shot tokens

The request body is the action payload, raw. The reply mirrors the action
id and resource headers and adds:

	X-Cloud-Error          categorical error kind ("None" on success)

The body carries the reply payload: JSON documents for structured results,
file bytes for downloads, a diagnostic string on failure. Transport-level
failures (rate limit, authentication, malformed ids) use plain HTTP status
codes and never reach the dispatcher.

# Executor Resolution

Identity is decided per request, strongest credential first:

 1. A verified client certificate names the executor via its subject
    common name. This is the only path on the private listener.
 2. A Bearer token pairs the X-Cloud-Executor header with the token
    content and runs the one-shot validator. Validation consumes the
    token whether or not it succeeds; a failed validation is a 401.
 3. Anything else is anonymous: the executor stays empty and the
    dispatcher resolves it to the guest user.

The X-Cloud-Executor header alone is never trusted; without a certificate
or a valid token the request is guest, regardless of what it claims.

# Rate Limiting

Each peer address gets its own token bucket (limit and burst both set to
RateLimitPerSecond). The check runs before authentication so an abusive
peer cannot burn token validations, and a throttled request is answered
with 429 without ever building an action.

# TLS Policy

Both listeners present the same server certificate. They differ only in
client policy:

	public   VerifyClientCertIfGiven  anonymous and token clients allowed
	private  RequireAndVerifyClientCert (with a CA pin)
	         RequireAnyClientCert       (without one)

The client CA file is optional; when it is missing the public listener
simply runs without pinning and the private listener still demands a
certificate but cannot verify its chain.

# Usage

	hub := server.NewHub()
	disp.OnResolved(hub.Deliver)

	public := server.NewListener(server.Settings{
		Kind:               server.Public,
		Port:               cfg.PublicPort,
		CertFile:           cfg.PublicKey,
		KeyFile:            cfg.PrivateKey,
		ClientCAFile:       cfg.CaPublicKey,
		RateLimitPerSecond: cfg.RateLimitPerSecond,
	}, disp, hub, dir) // dir is the one-shot token validator

	go public.Start(ctx) // serves until ctx is cancelled, then drains

Start blocks until the context is cancelled and finishes with a graceful
http.Server shutdown, so requests already parked on the hub still receive
their replies. Handler exposes the bare router for tests, which exercise
the full translation path against httptest without TLS.

# Client Disconnects

If the client goes away before the reply arrives, the handler cancels its
hub registration and returns. The dispatcher still resolves the action -
every action resolves exactly once - and the hub drops the reply for the
now-unknown id.

# See Also

  - pkg/dispatcher - consumes the actions, produces the replies
  - pkg/directory - the one-shot token validator behind Bearer requests
  - pkg/security - server certificate material for both listeners
*/
package server
