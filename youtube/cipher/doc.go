/*
Package cipher turns protected stream URLs into fetchable ones.

Some formats carry a signatureCipher instead of a URL: the signature in it
has to be transformed by a function shipped in the player JavaScript before
the URL is accepted. Most URLs also carry an "n" parameter that is throttled
unless rewritten by a second player function.

A Resolver downloads the watch page, locates the player script, caches it,
extracts the two functions (and the helper object the signature function
calls into) and evaluates them with otto. When extraction fails the whole
script is run and global `decipher`/`ncode` functions are used if present.

Errors are *Error values carrying a code; use IsNotFound, IsJSError and
friends to classify them.
*/
package cipher
