package llmjson

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestClean(t *testing.T) {
	Convey("Clean 能移除 markdown 代码块标记", t, func() {
		Convey("带 json 标记的代码块", func() {
			got := Clean("```json\n{\"a\": 1}\n```")
			So(got, ShouldEqual, `{"a": 1}`)
		})

		Convey("不带语言标记的代码块", func() {
			got := Clean("```\n{\"a\": 1}\n```")
			So(got, ShouldEqual, `{"a": 1}`)
		})

		Convey("代码块前后有空白", func() {
			got := Clean("  \n```json\n{\"a\": 1}\n```\n  ")
			So(got, ShouldEqual, `{"a": 1}`)
		})

		Convey("裸 JSON 原样返回", func() {
			got := Clean(`{"a": 1}`)
			So(got, ShouldEqual, `{"a": 1}`)
		})

		Convey("单行 fence 也能清理", func() {
			got := Clean("```json{\"a\": 1}```")
			So(got, ShouldEqual, `{"a": 1}`)
		})

		Convey("多行 JSON 保留内部换行", func() {
			got := Clean("```json\n{\n  \"a\": 1\n}\n```")
			So(got, ShouldEqual, "{\n  \"a\": 1\n}")
		})
	})
}

func TestDecode(t *testing.T) {
	Convey("Decode 清理后解码", t, func() {
		type doc struct {
			A int `json:"a"`
		}

		Convey("正常解码", func() {
			var d doc
			err := Decode("```json\n{\"a\": 42}\n```", &d)
			So(err, ShouldBeNil)
			So(d.A, ShouldEqual, 42)
		})

		Convey("空内容返回错误", func() {
			var d doc
			err := Decode("```\n\n```", &d)
			So(err, ShouldNotBeNil)
		})

		Convey("非 JSON 返回错误", func() {
			var d doc
			err := Decode("not json at all", &d)
			So(err, ShouldNotBeNil)
		})
	})
}
