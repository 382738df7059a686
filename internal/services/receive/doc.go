// Package receive is the consumer side of a collection session.
//
// AwaitSession long-polls the relay a bounded number of times; giving up
// has no effect on relay state. CollectSession then decrypts every provider
// envelope with the injected key: single envelopes directly, chunked ones by
// fetching chunks concurrently and reassembling them in index order.
// Chunk fetches are read-only, so transient failures are retried.
package receive
