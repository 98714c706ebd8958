// Package persist provides typed values backed by a storage.Store key.
//
// An Item loads once, serves reads from memory, and writes through to the
// store. Codecs decide the stored form: JSON by default, with Bool, Int,
// Float, String, Slice and Object for the shapes the app keeps. Unreadable
// stored values fall back to the default with a logged warning; they are
// never surfaced as errors.
//
// Items follow writes made by other processes as soon as the store's Sync
// reports them, so a toggle flipped in one terminal shows up in another.
package persist
