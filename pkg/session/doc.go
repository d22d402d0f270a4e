/*
Package session coordinates access to stored patches.

It serializes loads and saves per patch name inside one process and, when a
distributed locker is configured, across replicas that share a store.
*/
package session
