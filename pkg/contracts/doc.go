// Package contracts defines clean, focused interface contracts for the node.
//
// This package follows the Interface Segregation Principle (ISP) by providing
// small, focused interfaces that define clear contracts between components.
// Each interface represents a specific capability or service without exposing
// implementation details.
//
// Design Principles:
//   - Small, focused interfaces (ISP compliance)
//   - No concrete type leakage in signatures
//   - Comprehensive documentation for all public methods
//   - Domain-aligned contracts (discovery, registry, dialing)
//
// Interfaces:
//   - Discovery: Lifecycle and event surface of a peer discovery strategy
//   - Notifee: Receiver of discovered-peer events
//   - PeerRegistry: Address book and priority tagging for discovered peers
//   - Dialer: Outbound connection establishment
package contracts
