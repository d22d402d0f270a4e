// Package runtime turns a scheduled graph into render sequences and runs
// them on the audio thread.
//
// A Sequence is immutable once built. The Engine publishes sequences with a
// single atomic pointer; the audio thread picks the new one up at the next
// block boundary and bumps a generation counter after every block. A
// superseded sequence is disposed, and the units only it referenced are
// released, once the generation shows the audio thread has moved past it.
package runtime
