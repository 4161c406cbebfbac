// Package check contains the non-networking validation stages for
// mailprobe. These are deterministic and synchronous; everything that
// touches the network lives under internal/.
package check
