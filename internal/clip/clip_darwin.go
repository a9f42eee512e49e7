//go:build darwin && cgo

package clip

// #cgo CFLAGS: -x objective-c
// #cgo LDFLAGS: -framework Cocoa
// #import <Cocoa/Cocoa.h>
// #include <stdlib.h>
// #include <string.h>
//
// static NSInteger clipvault_change_count() {
//     return [[NSPasteboard generalPasteboard] changeCount];
// }
//
// // Returns a malloc'd, newline-separated list of file paths or NULL.
// static char* clipvault_read_file_urls() {
//     @autoreleasepool {
//         NSArray *urls = [[NSPasteboard generalPasteboard]
//             readObjectsForClasses:@[[NSURL class]]
//             options:@{NSPasteboardURLReadingFileURLsOnlyKey: @YES}];
//         if (urls == nil || [urls count] == 0) {
//             return NULL;
//         }
//         NSMutableArray *paths = [NSMutableArray arrayWithCapacity:[urls count]];
//         for (NSURL *u in urls) {
//             if ([u path] != nil) {
//                 [paths addObject:[u path]];
//             }
//         }
//         if ([paths count] == 0) {
//             return NULL;
//         }
//         return strdup([[paths componentsJoinedByString:@"\n"] UTF8String]);
//     }
// }
//
// static int clipvault_write_file_url(const char *path) {
//     @autoreleasepool {
//         NSPasteboard *pb = [NSPasteboard generalPasteboard];
//         [pb clearContents];
//         NSURL *u = [NSURL fileURLWithPath:[NSString stringWithUTF8String:path]];
//         return [pb writeObjects:@[u]] ? 1 : 0;
//     }
// }
//
// static void clipvault_clear() {
//     [[NSPasteboard generalPasteboard] clearContents];
// }
import "C"

import (
	"errors"
	"log/slog"
	"strings"
	"unsafe"

	"golang.design/x/clipboard"
)

type darwinSource struct{}

// New returns the macOS clipboard backend. NSPasteboard exposes a real change
// counter, so no polling goroutine is needed here.
// clipboard.Init is called here rather than in init() so that CLI
// sub-commands that never construct a Source don't log spurious warnings.
func New() Source {
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return NewMemory()
	}
	return darwinSource{}
}

func (darwinSource) Name() string { return "macOS NSPasteboard" }

func (darwinSource) ChangeCount() int64 { return int64(C.clipvault_change_count()) }

func (darwinSource) Read() (Content, error) {
	var c Content
	if cs := C.clipvault_read_file_urls(); cs != nil {
		c.Files = strings.Split(C.GoString(cs), "\n")
		C.free(unsafe.Pointer(cs))
	}
	if text := clipboard.Read(clipboard.FmtText); text != nil {
		c.Text = string(text)
	}
	return c, nil
}

func (darwinSource) WriteText(text string) error {
	C.clipvault_clear()
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

func (darwinSource) WriteFileReference(path string) error {
	cs := C.CString(path)
	defer C.free(unsafe.Pointer(cs))
	if C.clipvault_write_file_url(cs) == 0 {
		return errors.New("NSPasteboard refused file URL")
	}
	return nil
}

func (darwinSource) Clear() error {
	C.clipvault_clear()
	return nil
}

func (darwinSource) Close() {}
