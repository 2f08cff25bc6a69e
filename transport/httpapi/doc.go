// Package httpapi serves the Engine over HTTP with a chi router.
//
// Every response body is {code, message, data}. Business rejections map to
// 4xx statuses and dependency failures to 503; the message is always the
// end-user wording of the Engine result.
package httpapi
