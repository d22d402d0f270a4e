/*
Package nodes implements the built-in processing units of the host.

Every unit satisfies ports.Unit. Process methods run on the audio thread:
they never allocate, block or take locks. Parameter changes made from the
control thread (gains, routing matrices, program tables, bypass) are
published through atomics and picked up on the next block.

The Provider type exposes the built-in catalog to the registry.
*/
package nodes
