// Package node implements a songmesh storage node.
//
// A Resolver answers for the songs stored locally. A Network asks the
// configured peers as well and orders their answers by priority. Server
// exposes both over HTTP:
//
//	POST /api/slave/get-song-info   this node's record for a title
//	POST /api/slave/remove-song     remove a title from this node
//	POST /client/get-song-info      every node's record, strongest first
//	POST /client/get-song-link      the strongest audio or cover link
//	POST /client/add-song           store a multipart MP3 upload
//	POST /client/remove-song        remove a title everywhere
//	GET  /client/request-song       redirect a deferred link
//	GET  /file/:hash, /cover/:hash  stored bytes
//
// Errors are answered as {"code","message"}.
package node
