// Copyright 2023 The Cuber Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package util holds small allocation helpers shared by the wire codec and
// the store's read pool.
package util

import (
	"github.com/cubefs/cubefs/blobstore/util/bytespool"
)

// GetBuffer returns a pooled byte slice of exactly size bytes. Callers must
// return it via PutBuffer once they're done writing it out.
func GetBuffer(size int) []byte {
	return bytespool.Alloc(size)
}

// PutBuffer returns b to the pool. b must not be used again afterward.
func PutBuffer(b []byte) {
	bytespool.Free(b)
}
