// Copyright 2025-2026 Patrick J. Scruggs
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

// Package slogbaggageasync moves slow sinks off the emitting goroutine. The
// wrapper queues immutable snapshots on a bounded channel and drains them with
// worker goroutines; the interceptor's own fan-out stays synchronous.
//
// Basic usage:
//
//	file, _ := slogbaggage.OpenFileSink("audit", "/var/log/app/audit.jsonl")
//	icpt, _ := slogbaggage.NewInterceptor(slogbaggage.WithSinks(
//		slogbaggageasync.Wrap(file,
//			slogbaggageasync.WithQueueSize(4096),
//			slogbaggageasync.WithDropMode(slogbaggageasync.DropModeDropNewest),
//		),
//	))
//	defer icpt.Close() // drains the queue and closes the file
//
// The following environment variables are recognized when [WithEnv] is
// supplied:
//   - SLOGBAGGAGE_ASYNC_ENABLED: true/false to toggle the wrapper
//   - SLOGBAGGAGE_ASYNC_QUEUE_SIZE: channel capacity (0 makes the queue unbuffered)
//   - SLOGBAGGAGE_ASYNC_DROP_MODE: block | drop_newest | drop_oldest
//   - SLOGBAGGAGE_ASYNC_WORKERS: number of worker goroutines
//   - SLOGBAGGAGE_ASYNC_BATCH_SIZE: snapshots drained per worker wake-up
//   - SLOGBAGGAGE_ASYNC_FLUSH_INTERVAL: duration between periodic flushes
//   - SLOGBAGGAGE_ASYNC_FLUSH_TIMEOUT: duration string used by Close
package slogbaggageasync
