// Package protocol defines the contract between the session supervisor and
// the messaging-provider client.
//
// The provider side (handshake, crypto, wire codec) lives behind a Dialer;
// this package only names what the supervisor needs:
//   - Dial an identity's session, resuming a credential or starting a pairing
//   - A typed event stream per session (opened, closed, credential rotation,
//     pairing codes, inbound traffic)
//   - Enumerated close causes, so disconnect handling never inspects raw
//     provider error text
package protocol
