/*
Package scp03 implements the host side of GlobalPlatform Secure Channel
Protocol 03 (SCP03, Amendment D): mutual authentication with a security
domain, session key derivation, and the APDU wrap/unwrap pipeline that
provides C-MAC, C-ENC, R-MAC, and R-ENC protection.

# Handshake

A Session moves through a fixed sequence of states:

	Configured -> AwaitingInitResp -> KeysDerived -> Authenticated -> Terminal

	InitUpdate             builds INITIALIZE UPDATE, moves to AwaitingInitResp
	ParseInitUpdateResponse derives session keys, verifies the card
	                        cryptogram, moves to KeysDerived
	ExtAuth                builds EXTERNAL AUTHENTICATE, installs SL,
	                        moves to Authenticated
	BuildBeginRMAC/ApplyRMAC install rmac_SL once BEGIN R-MAC succeeds

Any parse failure moves the session to Terminal; all further operations on
a Terminal session fail with a StateError. There is no recovery path — the
caller must start a fresh Session.

# Session keys

Three session keys are derived from the static ENC/MAC keys and the host
and card challenges, via the Amendment D §4.1.5 CMAC-based KDF:

	S_ENC  command/response encryption key (derivation constant 0x04)
	S_MAC  C-MAC key (derivation constant 0x06)
	S_RMAC R-MAC key (derivation constant 0x07)

Card and host cryptograms (derivation constants 0x00 and 0x01) authenticate
each side to the other without exposing the static keys on the wire.

# Security levels

The SL byte and the i parameter use these bits:

	0x01  SL: C-MAC
	0x02  SL: C-ENC (requires C-MAC)
	0x10  SL: R-MAC;                   i: pseudo-random card challenge
	0x20  SL: R-ENC (requires R-MAC);  i: R-MAC supported
	0x60                               i: R-MAC and R-ENC supported

Accepted SL values are {0, 0x01, 0x03, 0x11, 0x13, 0x33}; ExtAuth rejects
anything else, and rejects R-MAC/R-ENC bits the negotiated i doesn't
support.

# Wrap/unwrap

Wrap applies the command pipeline: command-counter increment, CLA
neutralisation for MAC input, C-ENC (ICV from AES-ECB of the command
counter as a 128-bit block), C-MAC chaining, and CLA re-emission with the
secure-messaging bit set. Unwrap applies the response pipeline in the
opposite order: R-MAC verification (constant-time, MAC_chain not advanced)
then R-ENC decryption (ICV distinguished from the command ICV by OR-ing in
the top bit). ServerUnwrap is the symmetric mirror used by test code and
applet emulators standing in for a real card.

GET RESPONSE (INS 0xC0) passes through Wrap unchanged and does not advance
the command counter, matching how a caller drains a 61xx chain without
perturbing session state.
*/
package scp03
