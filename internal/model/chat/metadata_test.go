package chat

import (
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestParseMetadata(t *testing.T) {
	Convey("ParseMetadata 能解析模型返回的元数据文档", t, func() {
		Convey("完整文档", func() {
			raw := `{"interests":["Laptops"],"offeredProducts":["ThinkPad X1"],"rejectedProducts":["Mac"],"saleStatus":"interested","lastIntent":"wants a laptop under $1000"}`
			m, err := ParseMetadata(raw)
			So(err, ShouldBeNil)
			So(m.Interests, ShouldResemble, []string{"laptops"})
			So(m.OfferedProducts, ShouldResemble, []string{"thinkpad x1"})
			So(m.RejectedProducts, ShouldResemble, []string{"mac"})
			So(m.SaleStatus, ShouldEqual, SaleStatusInterested)
			So(m.LastIntent, ShouldEqual, "wants a laptop under $1000")
		})

		Convey("带 markdown 代码块的文档", func() {
			raw := "```json\n{\"interests\":[\"phones\"],\"saleStatus\":\"exploring\"}\n```"
			m, err := ParseMetadata(raw)
			So(err, ShouldBeNil)
			So(m.Interests, ShouldResemble, []string{"phones"})
		})

		Convey("缺失的数组字段默认空集", func() {
			m, err := ParseMetadata(`{"saleStatus":"negotiating"}`)
			So(err, ShouldBeNil)
			So(m.Interests, ShouldResemble, []string{})
			So(m.OfferedProducts, ShouldResemble, []string{})
			So(m.RejectedProducts, ShouldResemble, []string{})
		})

		Convey("缺失的 saleStatus 默认 exploring", func() {
			m, err := ParseMetadata(`{"interests":["tvs"]}`)
			So(err, ShouldBeNil)
			So(m.SaleStatus, ShouldEqual, SaleStatusExploring)
		})

		Convey("闭集之外的 saleStatus 视为解析失败", func() {
			_, err := ParseMetadata(`{"saleStatus":"won"}`)
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrMalformedMetadata), ShouldBeTrue)
		})

		Convey("非 JSON 内容视为解析失败", func() {
			_, err := ParseMetadata("I could not produce a summary, sorry.")
			So(err, ShouldNotBeNil)
			So(errors.Is(err, ErrMalformedMetadata), ShouldBeTrue)
		})

		Convey("同时出现在 offered 和 rejected 时以拒绝为准", func() {
			raw := `{"offeredProducts":["mac","thinkpad"],"rejectedProducts":["mac"],"saleStatus":"interested"}`
			m, err := ParseMetadata(raw)
			So(err, ShouldBeNil)
			So(m.OfferedProducts, ShouldResemble, []string{"thinkpad"})
			So(m.RejectedProducts, ShouldResemble, []string{"mac"})
		})

		Convey("重复与空白条目会被归一去重", func() {
			raw := `{"interests":[" Laptops ","laptops","","Gaming"],"saleStatus":"exploring"}`
			m, err := ParseMetadata(raw)
			So(err, ShouldBeNil)
			So(m.Interests, ShouldResemble, []string{"laptops", "gaming"})
		})

		Convey("解析结果再序列化能幂等解析", func() {
			raw := `{"interests":["Laptops"],"offeredProducts":["ThinkPad"],"rejectedProducts":["Mac"],"saleStatus":"negotiating","lastIntent":"comparing models"}`
			first, err := ParseMetadata(raw)
			So(err, ShouldBeNil)

			second, err := ParseMetadata(first.JSON())
			So(err, ShouldBeNil)
			So(second, ShouldResemble, first)
		})
	})
}

func TestMetadataMerge(t *testing.T) {
	Convey("Merge 强制执行漏斗单调性", t, func() {
		Convey("阶段只进不退", func() {
			current := &Metadata{SaleStatus: SaleStatusNegotiating}
			proposed := &Metadata{SaleStatus: SaleStatusExploring}
			merged := current.Merge(proposed)
			So(merged.SaleStatus, ShouldEqual, SaleStatusNegotiating)
		})

		Convey("更靠后的提案会推进阶段", func() {
			current := &Metadata{SaleStatus: SaleStatusInterested}
			proposed := &Metadata{SaleStatus: SaleStatusClosed}
			merged := current.Merge(proposed)
			So(merged.SaleStatus, ShouldEqual, SaleStatusClosed)
		})

		Convey("lost 可以从任何阶段进入", func() {
			for _, from := range []SaleStatus{SaleStatusExploring, SaleStatusInterested, SaleStatusNegotiating, SaleStatusClosed} {
				current := &Metadata{SaleStatus: from}
				merged := current.Merge(&Metadata{SaleStatus: SaleStatusLost})
				So(merged.SaleStatus, ShouldEqual, SaleStatusLost)
			}
		})

		Convey("进入 lost 后合并不会自动离开", func() {
			current := &Metadata{SaleStatus: SaleStatusLost}
			merged := current.Merge(&Metadata{SaleStatus: SaleStatusClosed})
			So(merged.SaleStatus, ShouldEqual, SaleStatusLost)
		})

		Convey("offered 与 rejected 互斥", func() {
			current := NewMetadata()
			proposed := &Metadata{
				OfferedProducts:  []string{"Mac", "ThinkPad"},
				RejectedProducts: []string{"mac"},
				SaleStatus:       SaleStatusInterested,
			}
			merged := current.Merge(proposed)
			So(merged.OfferedProducts, ShouldResemble, []string{"thinkpad"})
			So(merged.RejectedProducts, ShouldResemble, []string{"mac"})
		})

		Convey("提案缺失 lastIntent 时保留当前值", func() {
			current := &Metadata{SaleStatus: SaleStatusInterested, LastIntent: "budget question"}
			merged := current.Merge(&Metadata{SaleStatus: SaleStatusInterested})
			So(merged.LastIntent, ShouldEqual, "budget question")
		})
	})
}

func TestMetadataIsInitial(t *testing.T) {
	Convey("IsInitial 判定初始态", t, func() {
		Convey("空元数据是初始态", func() {
			So(NewMetadata().IsInitial(), ShouldBeTrue)
		})

		Convey("有兴趣记录后不再是初始态", func() {
			m := NewMetadata()
			m.Interests = []string{"laptops"}
			So(m.IsInitial(), ShouldBeFalse)
		})

		Convey("有 lastIntent 后不再是初始态", func() {
			m := NewMetadata()
			m.LastIntent = "wants a refund"
			So(m.IsInitial(), ShouldBeFalse)
		})

		Convey("只有拒绝记录仍视为初始态", func() {
			// 与全量抽取的触发条件保持一致：interests/offered 为空且无 lastIntent
			m := NewMetadata()
			m.RejectedProducts = []string{"mac"}
			So(m.IsInitial(), ShouldBeTrue)
		})
	})
}
